package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestViperConfigGetString(t *testing.T) {
	v := viper.New()
	v.Set("name", "test")
	cfg := New(v)

	if got := cfg.GetString("name"); got != "test" {
		t.Errorf("GetString('name') = %q, want %q", got, "test")
	}
}

func TestViperConfigGetInt(t *testing.T) {
	v := viper.New()
	v.Set("port", 8080)
	cfg := New(v)

	if got := cfg.GetInt("port"); got != 8080 {
		t.Errorf("GetInt('port') = %d, want %d", got, 8080)
	}
}

func TestViperConfigGetBool(t *testing.T) {
	v := viper.New()
	v.Set("enabled", true)
	cfg := New(v)

	if got := cfg.GetBool("enabled"); !got {
		t.Error("GetBool('enabled') = false, want true")
	}
}

func TestViperConfigGetDuration(t *testing.T) {
	v := viper.New()
	v.Set("timeout", "5s")
	cfg := New(v)

	want := 5 * time.Second
	if got := cfg.GetDuration("timeout"); got != want {
		t.Errorf("GetDuration('timeout') = %v, want %v", got, want)
	}
}

func TestViperConfigIsSet(t *testing.T) {
	v := viper.New()
	v.Set("exists", true)
	cfg := New(v)

	if !cfg.IsSet("exists") {
		t.Error("IsSet('exists') = false, want true")
	}
	if cfg.IsSet("missing") {
		t.Error("IsSet('missing') = true, want false")
	}
}

func TestViperConfigSub(t *testing.T) {
	v := viper.New()
	v.Set("database.driver", "sqlite")
	v.Set("database.pool_size", 10)
	cfg := New(v)

	sub := cfg.Sub("database")
	if sub == nil {
		t.Fatal("Sub('database') = nil")
	}
	if got := sub.GetString("driver"); got != "sqlite" {
		t.Errorf("sub.GetString('driver') = %q, want %q", got, "sqlite")
	}
	if got := sub.GetInt("pool_size"); got != 10 {
		t.Errorf("sub.GetInt('pool_size') = %d, want %d", got, 10)
	}
}

func TestViperConfigSubMissing(t *testing.T) {
	v := viper.New()
	cfg := New(v)

	sub := cfg.Sub("nonexistent")
	if sub == nil {
		t.Fatal("Sub('nonexistent') should return empty Config, not nil")
	}
	// Should return zero values without panic.
	if got := cfg.GetString("anything"); got != "" {
		t.Errorf("empty config GetString() = %q, want empty", got)
	}
	_ = sub
}

func TestViperConfigUnmarshal(t *testing.T) {
	v := viper.New()
	v.Set("host", "localhost")
	v.Set("port", 9090)
	cfg := New(v)

	var target struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	}
	if err := cfg.Unmarshal(&target); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if target.Host != "localhost" {
		t.Errorf("Host = %q, want %q", target.Host, "localhost")
	}
	if target.Port != 9090 {
		t.Errorf("Port = %d, want %d", target.Port, 9090)
	}
}

func TestLoadDefaults(t *testing.T) {
	f, err := Load("")
	if err != nil {
		t.Fatalf("Load('') error = %v", err)
	}
	if f.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want %q", f.Database.Driver, "sqlite")
	}
	if got := f.Server.Addr(); got != "0.0.0.0:8080" {
		t.Errorf("Server.Addr() = %q, want %q", got, "0.0.0.0:8080")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  host: 127.0.0.1
  port: 9191
database:
  driver: postgres
  dsn: postgres://localhost/app
tables:
  - name: tasks
    mode: base
    soft_delete: true
    has_priority: true
    columns:
      - name: title
        type: text
        not_null: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error = %v", path, err)
	}
	if got := f.Server.Addr(); got != "127.0.0.1:9191" {
		t.Errorf("Server.Addr() = %q, want %q", got, "127.0.0.1:9191")
	}
	if f.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want %q", f.Database.Driver, "postgres")
	}
	if len(f.Tables) != 1 {
		t.Fatalf("len(Tables) = %d, want 1", len(f.Tables))
	}
	tc := f.Tables[0]
	if tc.Name != "tasks" || tc.Mode != "base" || !tc.SoftDelete || !tc.HasPriority {
		t.Errorf("unexpected table config: %+v", tc)
	}
	if len(tc.Columns) != 1 || tc.Columns[0].Name != "title" || !tc.Columns[0].NotNull {
		t.Errorf("unexpected columns: %+v", tc.Columns)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() on a missing file should fail")
	}
}

func TestNilViper(t *testing.T) {
	cfg := New(nil)
	// Should not panic and return zero values.
	if got := cfg.GetString("key"); got != "" {
		t.Errorf("nil viper GetString() = %q, want empty", got)
	}
}
