// The main package for the laborstats executable.
package main

import "github.com/JakeFAU/labor-stats-dashboard/cmd"

func main() {
	cmd.Execute()
}
