// Command dbcli is the interactive front end for the storage engine: a
// line-oriented REPL with insert/select/delete commands and .exit/
// .btree meta-commands. It is a thin shell over package db — all
// persistence and tree logic lives there.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rajeshpillai/tiny-sqlite/btree"
	"github.com/rajeshpillai/tiny-sqlite/common"
	"github.com/rajeshpillai/tiny-sqlite/db"
)

func main() {
	path := flag.String("db", "test.db", "path to the database file")
	flag.Parse()

	database, err := db.Open(db.DefaultConfig(*path))
	if err != nil {
		log.Fatal(err)
	}

	if err := repl(os.Stdin, os.Stdout, database); err != nil {
		log.Fatal(err)
	}
}

// repl reads lines from in until .exit or EOF, dispatching each to a
// meta-command or a statement, and closes database exactly once on
// .exit or EOF. It returns only a fatal (non-user) error, and returns
// it without closing database; per-statement errors are printed and
// looped past.
func repl(in *os.File, out *os.File, database *db.Database) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "db > ")
		if !scanner.Scan() {
			return database.Close()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			done, err := runMeta(line, out, database)
			if err != nil {
				return err
			}
			if done {
				return database.Close()
			}
			continue
		}

		if err := runStatement(line, out, database); err != nil {
			return err
		}
	}
}

// runMeta handles a "." command. done is true once the REPL should
// exit (.exit was given).
func runMeta(line string, out *os.File, database *db.Database) (done bool, err error) {
	switch line {
	case ".exit":
		return true, nil
	case ".btree":
		if err := database.PrettyPrintBTree(out); err != nil {
			return false, err
		}
		return false, nil
	default:
		fmt.Fprintf(out, "Unrecognized command '%s'.\n", line)
		return false, nil
	}
}

// runStatement parses and executes one record-level statement. Any
// error it returns is fatal (a structural error from the core);
// user-facing outcomes (syntax errors, duplicate key, not found) are
// printed directly and reported as nil.
func runStatement(line string, out *os.File, database *db.Database) error {
	fields := strings.Fields(line)
	keyword := strings.ToLower(fields[0])

	switch keyword {
	case "insert":
		return runInsert(fields, out, database)
	case "select":
		return runSelect(out, database)
	case "delete":
		return runDelete(fields, out, database)
	default:
		fmt.Fprintf(out, "Unrecognized keyword at start of '%s'.\n", line)
		return nil
	}
}

func runInsert(fields []string, out *os.File, database *db.Database) error {
	if len(fields) != 4 {
		fmt.Fprintln(out, "Syntax error")
		return nil
	}
	id, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		fmt.Fprintln(out, "Syntax error")
		return nil
	}

	row, err := btree.NewRow(int32(id), fields[2], fields[3])
	if err != nil {
		fmt.Fprintln(out, "Syntax error")
		return nil
	}

	switch err := database.Insert(row); {
	case err == nil:
		fmt.Fprintln(out, "Executed.")
		return nil
	case errors.Is(err, common.ErrDuplicateKey):
		fmt.Fprintln(out, "Error: duplicate key")
		return nil
	default:
		return err
	}
}

func runSelect(out *os.File, database *db.Database) error {
	rows, err := database.All()
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Fprintf(out, "(%d, %s, %s)\n", row.ID, row.Username, row.Email)
	}
	return nil
}

func runDelete(fields []string, out *os.File, database *db.Database) error {
	if len(fields) != 2 {
		fmt.Fprintln(out, "Syntax error")
		return nil
	}
	id, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		fmt.Fprintln(out, "Syntax error")
		return nil
	}

	switch err := database.Delete(int32(id)); {
	case err == nil:
		fmt.Fprintln(out, "Deleted.")
		return nil
	case errors.Is(err, common.ErrKeyNotFound):
		fmt.Fprintln(out, "Error: key not found")
		return nil
	default:
		return err
	}
}
