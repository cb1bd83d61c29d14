// Command grant-discovery discovers and ingests funding opportunities.
package main

import "github.com/JakeFAU/grant-discovery/cmd"

func main() {
	cmd.Execute()
}
