package schema_test

import (
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/satishbabariya/exprsql/query/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Account struct {
	ID       int    `db:"account_id,key,auto"`
	Email    string `db:"email"`
	Nickname string
	Secret   string `db:"-"`
	internal int
}

type Empty struct {
	hidden string
}

var accountType = reflect.TypeOf(Account{})

func TestDerive(t *testing.T) {
	ts, err := schema.Derive(accountType)
	require.NoError(t, err)

	assert.Equal(t, "Account", ts.Name)
	assert.Equal(t, "ID", ts.Key)
	assert.True(t, ts.KeyAutoGenerated)
	require.Len(t, ts.Columns, 3)

	id, ok := ts.Column("ID")
	require.True(t, ok)
	assert.Equal(t, "account_id", id.Physical())
	assert.True(t, id.AutoGenerated)
	assert.Equal(t, []int{0}, id.Index)

	nick, ok := ts.Column("nickname")
	require.True(t, ok, "column lookup falls back to case-insensitive match")
	assert.Equal(t, "Nickname", nick.Physical())

	_, ok = ts.Column("Secret")
	assert.False(t, ok)
}

func TestDerive_Errors(t *testing.T) {
	type twoKeys struct {
		A int `db:"a,key"`
		B int `db:"b,key"`
	}
	tests := []struct {
		name string
		typ  reflect.Type
	}{
		{name: "not a struct", typ: reflect.TypeOf(0)},
		{name: "no exported fields", typ: reflect.TypeOf(Empty{})},
		{name: "two keys", typ: reflect.TypeOf(twoKeys{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Derive(tt.typ)
			require.ErrorIs(t, err, schema.ErrSchemaNotResolved)
		})
	}
}

func TestRegistry_ResolveCaches(t *testing.T) {
	r := schema.NewRegistry()

	var wg sync.WaitGroup
	results := make([]*schema.TableSchema, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts, err := r.Resolve(reflect.PointerTo(accountType))
			assert.NoError(t, err)
			results[i] = ts
		}(i)
	}
	wg.Wait()

	final, err := r.Resolve(accountType)
	require.NoError(t, err)
	for _, ts := range results {
		assert.Equal(t, final.Name, ts.Name)
	}
	again, err := r.Resolve(accountType)
	require.NoError(t, err)
	assert.Same(t, final, again)
}

func TestRegistry_Register(t *testing.T) {
	r := schema.NewRegistry()
	err := schema.Register[Account](r, &schema.TableSchema{
		Name:   "accounts",
		Schema: "crm",
		Key:    "ID",
		Columns: []schema.ColumnSchema{
			{Name: "ID", DBName: "id"},
			{Name: "Email"},
		},
	})
	require.NoError(t, err)

	ts, err := r.Resolve(accountType)
	require.NoError(t, err)
	assert.Equal(t, "accounts", ts.Name)
	email, ok := ts.Column("Email")
	require.True(t, ok)
	assert.Equal(t, []int{1}, email.Index)
	assert.Equal(t, reflect.TypeOf(""), email.Type)
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	tests := []struct {
		name string
		ts   *schema.TableSchema
	}{
		{name: "unknown field", ts: &schema.TableSchema{Name: "a", Columns: []schema.ColumnSchema{{Name: "Missing"}}}},
		{name: "duplicate column", ts: &schema.TableSchema{Name: "a", Columns: []schema.ColumnSchema{{Name: "Email"}, {Name: "Email"}}}},
		{name: "key not a column", ts: &schema.TableSchema{Name: "a", Key: "ID", Columns: []schema.ColumnSchema{{Name: "Email"}}}},
		{name: "no name", ts: &schema.TableSchema{Columns: []schema.ColumnSchema{{Name: "Email"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, schema.NewRegistry().Register(accountType, tt.ts))
		})
	}
}

func TestLoadYAML(t *testing.T) {
	doc := `
tables:
  - entity: Account
    name: accounts
    schema: crm
    key: ID
    keyAutoGenerated: true
    columns:
      - {name: ID, db: id, auto: true}
      - {name: Email, db: email_address}
  - entity: Empty
`
	type Note struct {
		Body string
	}
	r := schema.NewRegistry()
	err := r.LoadYAML(strings.NewReader(doc), accountType)
	require.Error(t, err, "Empty is not among the given types")

	doc = strings.Replace(doc, "entity: Empty", "entity: Note", 1)
	r = schema.NewRegistry()
	require.NoError(t, r.LoadYAML(strings.NewReader(doc), accountType, reflect.TypeOf(Note{})))

	ts, err := r.Resolve(accountType)
	require.NoError(t, err)
	assert.Equal(t, "crm", ts.Schema)
	assert.True(t, ts.KeyAutoGenerated)
	email, ok := ts.Column("Email")
	require.True(t, ok)
	assert.Equal(t, "email_address", email.Physical())

	note, err := r.Resolve(reflect.TypeOf(Note{}))
	require.NoError(t, err)
	assert.Equal(t, "Note", note.Name)
	require.Len(t, note.Columns, 1)
	assert.Equal(t, "Body", note.Columns[0].Name)
}

func TestLoadYAML_Malformed(t *testing.T) {
	err := schema.NewRegistry().LoadYAML(strings.NewReader("tables: {"), accountType)
	assert.Error(t, err)
}
