// Public domain.

package main

import "github.com/nishamrutha/chronostar/internal/cstprog"

func main() {
	cstprog.Main()
}
