package migration

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const newMigrationFmt = `package %s

import (
	"context"

	"github.com/koniz-dev/grex-sub004/kv"
	"github.com/koniz-dev/grex-sub004/kv/migration"
)

// %s is freshly scaffolded; fill in the transformation.
var %s = migration.Func(%d, %q, func(ctx context.Context, store kv.Store) error {
	return nil
})
`

// CreateNewMigration persists a new numbered migration file in the domain
// catalog directory dir (whose package is named pkg) and splices it into
// that catalog's all.go list of migrations.
//
// The all.go array carries a trailing "{{ do_not_edit . }}" marker comment;
// the new entry is inserted by executing all.go as a template in which that
// marker expands to the entry plus a fresh marker.
func CreateNewMigration(dir, pkg string, existing []Spec, name string) error {
	camelName := strings.ReplaceAll(cases.Title(language.Und).String(name), " ", "")

	newMigrationNumber := len(existing) + 1
	fromVersion := NewRegistry(existing...).TargetVersion()

	newMigrationVariable := fmt.Sprintf("Migration%04d_%s", newMigrationNumber, camelName)

	newMigrationFile := filepath.Join(dir, fmt.Sprintf("%04d_%s.go", newMigrationNumber, strings.ReplaceAll(name, " ", "-")))

	fmt.Println("Creating new migration:", newMigrationFile)

	stub := fmt.Sprintf(newMigrationFmt, pkg, newMigrationVariable, newMigrationVariable, fromVersion, name)
	if err := os.WriteFile(newMigrationFile, []byte(stub), 0644); err != nil {
		return err
	}

	allFile := filepath.Join(dir, "all.go")

	fmt.Println("Inserting migration into", allFile)

	tmplData, err := os.ReadFile(allFile)
	if err != nil {
		return err
	}

	type Context struct {
		Name     string
		Variable string
	}

	tmpl := template.Must(
		template.
			New("migrations").
			Funcs(template.FuncMap{"do_not_edit": func(c Context) string {
				return fmt.Sprintf("%s\n%s,\n// {{ do_not_edit . }}", c.Name, c.Variable)
			}}).
			Parse(string(tmplData)),
	)

	buf := new(bytes.Buffer)

	if err := tmpl.Execute(buf, Context{
		Name:     name,
		Variable: newMigrationVariable,
	}); err != nil {
		return err
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return err
	}

	return os.WriteFile(allFile, src, 0644)
}
