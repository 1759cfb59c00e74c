// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/cryptfs/cmd/cryptfs/cmd"
)

func main() {
	cmd.Execute()
}
