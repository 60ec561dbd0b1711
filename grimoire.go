// Package grimoire is a relational object-mapping and query
// construction library. Entities are declared with typed attribute
// builders, queried through a fluent, composable Spell, and persisted
// across the MySQL, PostgreSQL and SQLite families.
//
// # Declaring entities
//
//	Post := grimoire.MustNewModel(grimoire.ModelConfig{
//	    Name:  "Post",
//	    Table: "articles",
//	    Attributes: []*field.Builder{
//	        field.BigInt("id").PrimaryKey().AutoIncrement(),
//	        field.String("title"),
//	        field.Date("createdAt").ColumnName("gmt_create"),
//	        field.Date("updatedAt").ColumnName("gmt_modified"),
//	        field.Date("deletedAt").ColumnName("gmt_deleted"),
//	    },
//	})
//
// # Connecting
//
//	realm, err := grimoire.Connect(grimoire.Config{
//	    Dialect:  "mysql",
//	    Host:     "localhost",
//	    User:     "root",
//	    Database: "blog",
//	}, Post)
//
// # Querying
//
//	posts, err := Post.Where("title like ?", "%Post%").
//	    Order("id", "desc").
//	    Limit(10).
//	    All(ctx)
//
// Spells compose freely before execution and freeze afterwards; a
// model with a deletedAt attribute soft-deletes and its queries filter
// deleted rows unless Unscoped or Unparanoid is chained.
package grimoire

import "github.com/grimoiredb/grimoire/expr"

// Raw returns an escape-hatch expression spliced verbatim into the
// generated SQL.
func Raw(sql string) *expr.Raw { return &expr.Raw{SQL: sql} }
