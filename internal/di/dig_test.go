package di

import (
	"testing"

	"go.uber.org/dig"
)

// Test types for dependency injection
type Database struct {
	Name string
}

type Repository struct {
	DB  *Database
	Env string
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		opts    []Option
		wantErr bool
	}{
		{
			name:    "creates container with no providers",
			env:     "dev",
			opts:    nil,
			wantErr: false,
		},
		{
			name: "creates container with providers",
			env:  "prd",
			opts: []Option{
				WithProviders(func() *Database {
					return &Database{Name: "runs-db"}
				}),
			},
			wantErr: false,
		},
		{
			name: "rejects duplicate providers",
			env:  "dev",
			opts: []Option{
				WithProviders(
					func() *Database { return &Database{Name: "a"} },
					func() *Database { return &Database{Name: "b"} },
				),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container, err := New(tt.env, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if container == nil && !tt.wantErr {
				t.Error("New() returned nil container without error")
			}
		})
	}
}

func TestNew_ProvidesEnvironmentAndOptions(t *testing.T) {
	container, err := New("stg",
		WithWorkspace("/srv/checkout"),
		WithDryRun(true),
	)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	err = container.Invoke(func(env string, workspace Workspace, dryRun DryRun) {
		if env != "stg" {
			t.Errorf("env = %v, want stg", env)
		}
		if workspace != "/srv/checkout" {
			t.Errorf("workspace = %v, want /srv/checkout", workspace)
		}
		if !bool(dryRun) {
			t.Error("dryRun = false, want true")
		}
	})
	if err != nil {
		t.Fatalf("Invoke() unexpected error: %v", err)
	}
}

func TestMustGet(t *testing.T) {
	t.Run("successfully retrieves dependency", func(t *testing.T) {
		container, err := New("dev",
			WithProviders(
				func() *Database { return &Database{Name: "runs-db"} },
				func(db *Database, env string) *Repository {
					return &Repository{DB: db, Env: env}
				},
			),
		)
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}

		repo := MustGet[*Repository](container)
		if repo.DB.Name != "runs-db" {
			t.Errorf("Repository.DB.Name = %v, want runs-db", repo.DB.Name)
		}
		if repo.Env != "dev" {
			t.Errorf("Repository.Env = %v, want dev", repo.Env)
		}
	})

	t.Run("panics when dependency not found", func(t *testing.T) {
		container, err := New("dev")
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}

		defer func() {
			if r := recover(); r == nil {
				t.Error("MustGet() did not panic")
			}
		}()

		_ = MustGet[*Database](container)
	})
}

func TestContainer_Interface(t *testing.T) {
	var _ Container = (*dig.Container)(nil)
}
