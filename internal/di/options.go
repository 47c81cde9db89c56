package di

// Workspace is the local repository checkout the dispatcher deploys from.
type Workspace string

// DryRun disables all remote mutation when true.
type DryRun bool

// Option is a function that configures the dependency injection container.
type Option func(*options)

// WithWorkspace sets the local checkout directory.
func WithWorkspace(path string) Option {
	return func(opts *options) {
		opts.workspace = Workspace(path)
	}
}

// WithDryRun toggles dry-run mode for all transports.
func WithDryRun(dryRun bool) Option {
	return func(opts *options) {
		opts.dryRun = dryRun
	}
}

// WithProviders adds constructor functions to the dependency injection container.
// Each provider should be a constructor function that returns one or more values.
// Providers can declare dependencies as function parameters, which will be
// automatically resolved by the container.
//
// Example:
//
//	WithProviders(
//	    func() *Database { return &Database{} },
//	    func(db *Database) *Service { return &Service{DB: db} },
//	)
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	workspace Workspace
	providers []any
	dryRun    bool
}
