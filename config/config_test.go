package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "orderform", cfg.AppName)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "order.placed", cfg.OutgoingTopic)
	assert.Equal(t, 30*time.Second, cfg.CatalogCacheTTL)
	assert.Equal(t, "de", cfg.Language)
	assert.Empty(t, cfg.RabbitMQURL)
	assert.Empty(t, cfg.SMTPHost, "mails are logged unless a relay is configured")
}

func TestLoadConfig_EmptyEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte("SMTP_HOST=mail.internal\n"), 0o600))
	t.Setenv("SMTP_HOST", "")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Empty(t, cfg.SMTPHost)
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	content := "DB_HOST=db.internal\nDB_PORT=6543\nCURRENCY_SUFFIX=EUR\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte(content), 0o600))
	t.Setenv("DB_PORT", "7000")
	t.Setenv("CUSTOMER_FIELDS", "name:required,phone")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, 7000, cfg.DBPort, "environment overrides app.env")
	assert.Equal(t, "EUR", cfg.CurrencySuffix)

	fields, err := cfg.ParseCustomerFields()
	require.NoError(t, err)
	assert.Equal(t, []FieldSpec{{Name: "name", Required: true}, {Name: "phone"}}, fields)

	names, err := cfg.CustomerFieldNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "phone"}, names)
	assert.Equal(t, names, FieldNames(fields))
}

func TestLoadConfig_RejectsBadCustomerField(t *testing.T) {
	t.Setenv("CUSTOMER_FIELDS", "name:mandatory")

	_, err := LoadConfig(t.TempDir())
	assert.ErrorContains(t, err, "unknown flag")
}

func TestParseCustomerFields(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []FieldSpec
		wantErr bool
	}{
		{name: "empty", raw: "", want: nil},
		{name: "spaces and optional", raw: " email : required , comment:optional ", want: []FieldSpec{{Name: "email", Required: true}, {Name: "comment"}}},
		{name: "trailing comma", raw: "name,", want: []FieldSpec{{Name: "name"}}},
		{name: "missing name", raw: ":required", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Config{CustomerFields: tc.raw}.ParseCustomerFields()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := Config{DBHost: "h", DBPort: 1, DBUser: "u", DBPassword: "p", DBName: "n", DBSSLMode: "disable"}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=n sslmode=disable", cfg.DSN())
}
