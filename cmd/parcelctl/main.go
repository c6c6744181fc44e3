package main

import "github.com/iliyamo/parcel-marketplace/cmd/parcelctl/cmd"

func main() {
	cmd.Execute()
}
