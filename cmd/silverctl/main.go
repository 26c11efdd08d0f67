// silverctl is the maintenance CLI for the encrypted estimate datastore.
package main

import "github.com/kta136/Silver-estimate-sub000/cmd/silverctl/cmd"

func main() {
	cmd.Execute()
}
