// Package campuschat embeds the SQL migrations so every binary can run them
// at startup without shipping files alongside the executable.
package campuschat

import "embed"

//go:embed migrations
var Migrations embed.FS
