// Command sentinelwatch runs the sentinelwatch local security sidecar.
package main

import "github.com/sentinelwatch/sentinelwatch/cmd/sentinelwatch/cmd"

func main() {
	cmd.Execute()
}
