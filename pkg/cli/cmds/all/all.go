// Package all pulls in every command provider.
package all

import (
	_ "github.com/LyraLiu1208/encos-sdk/pkg/cli/cmds/motor"
)
