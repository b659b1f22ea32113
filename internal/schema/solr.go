package schema

import (
	"bytes"
	"fmt"
	"log"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/rzpsarthak13/starphoenix/internal/core"
)

var (
	fieldTypeExpr = xpath.MustCompile("//fieldType | //fieldtype")
	fieldExpr     = xpath.MustCompile("//field")
	uniqueKeyExpr = xpath.MustCompile("//uniqueKey")
)

// LoadSolrSchema reads a Solr schema.xml into a definition named table.
// Field types are taken from the class of their fieldType ("solr.TrieIntField"
// becomes "TrieInt") and the uniqueKey becomes the primary key.
func LoadSolrSchema(data []byte, table string) (*core.Schema, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Solr schema: %w", err)
	}

	classes := make(map[string]string)
	for _, n := range xmlquery.QuerySelectorAll(root, fieldTypeExpr) {
		name := n.SelectAttr("name")
		class := n.SelectAttr("class")
		if name == "" || class == "" {
			continue
		}
		classes[name] = storeTypeName(class)
	}

	s := &core.Schema{TableName: table}
	for _, n := range xmlquery.QuerySelectorAll(root, fieldExpr) {
		name := n.SelectAttr("name")
		fieldType := n.SelectAttr("type")
		typ, ok := classes[fieldType]
		if !ok {
			return nil, fmt.Errorf("field '%s' refers to undeclared fieldType '%s'", name, fieldType)
		}
		s.Fields = append(s.Fields, core.FieldSpec{Name: name, Type: typ})
	}

	if key := xmlquery.QuerySelector(root, uniqueKeyExpr); key != nil {
		s.PrimaryKey = strings.TrimSpace(key.InnerText())
	}

	log.Printf("[SCHEMA] Loaded Solr schema for '%s': %d fields, key '%s'", table, len(s.Fields), s.PrimaryKey)
	return s, nil
}

// storeTypeName maps a Solr field class to its store type name.
func storeTypeName(class string) string {
	name := class[strings.LastIndex(class, ".")+1:]
	return strings.TrimSuffix(name, "Field")
}
