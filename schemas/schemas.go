// Package schemas хранит версионированные JSON-схемы контрактов сервиса
package schemas

import "embed"

//go:embed events registry
var SchemasFS embed.FS
