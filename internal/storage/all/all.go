// Package all links every catalog backend and the SQL Server driver.
//
//	import _ "csvsniff/internal/storage/all"
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "csvsniff/internal/storage/mssql"
	_ "csvsniff/internal/storage/postgres"
	_ "csvsniff/internal/storage/sqlite"
)
