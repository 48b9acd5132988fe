package appfs

import "embed"

// FS holds the files shipped inside the binaries.
//
//go:embed migrations/*.sql templates common-passwords.txt.gz
var FS embed.FS
