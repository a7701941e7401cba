package device

import (
	"context"
	"errors"
	"fmt"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device lifecycle management on top of a Repository.
//
// It owns the registration flow: MAC uniqueness, public ID allocation,
// and secret issuance. All public methods are thread-safe as long as the
// underlying repository is.
type Registry struct {
	repo             Repository
	publicIDLength   int
	publicIDAttempts int
	logger           Logger
}

// NewRegistry creates a new device registry.
//
// publicIDLength controls how many characters the generated topic-facing
// ID has; publicIDAttempts bounds how many collisions are tolerated
// before registration fails with ErrIDGenerationExhausted.
func NewRegistry(repo Repository, publicIDLength, publicIDAttempts int) *Registry {
	return &Registry{
		repo:             repo,
		publicIDLength:   publicIDLength,
		publicIDAttempts: publicIDAttempts,
		logger:           noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RegisterParams carries the fields accepted from a registration request.
type RegisterParams struct {
	MACAddress   string
	BoardNumber  string
	RegisteredBy *string
	CompanyID    *string
}

// Register creates a new device from a registration handshake.
//
// The MAC address is validated and canonicalised; a duplicate MAC returns
// ErrDeviceExists. A fresh public ID and secret key are generated. Public
// ID collisions are retried up to the configured attempt budget.
func (r *Registry) Register(ctx context.Context, params RegisterParams) (*Device, error) {
	mac, err := NormalizeMAC(params.MACAddress)
	if err != nil {
		return nil, err
	}

	if _, err := r.repo.GetByMAC(ctx, mac); err == nil {
		return nil, ErrDeviceExists
	} else if !errors.Is(err, ErrDeviceNotFound) {
		return nil, err
	}

	secretKey, err := GenerateSecretKey()
	if err != nil {
		return nil, fmt.Errorf("generating secret key: %w", err)
	}

	device := &Device{
		ID:           GenerateID(),
		MACAddress:   mac,
		BoardNumber:  params.BoardNumber,
		SecretKey:    secretKey,
		RegisteredBy: params.RegisteredBy,
		CompanyID:    params.CompanyID,
	}

	// Public IDs are short, so collisions are possible; retry with a
	// fresh ID up to the attempt budget.
	for attempt := 0; attempt < r.publicIDAttempts; attempt++ {
		publicID, err := GeneratePublicID(r.publicIDLength)
		if err != nil {
			return nil, fmt.Errorf("generating public id: %w", err)
		}
		device.PublicID = publicID

		err = r.repo.Create(ctx, device)
		if err == nil {
			r.logger.Info("device registered",
				"id", device.ID,
				"public_id", device.PublicID,
				"mac", device.MACAddress,
			)
			return device, nil
		}
		if !errors.Is(err, ErrDeviceExists) {
			return nil, err
		}

		// The MAC was free a moment ago, so the conflict is almost
		// certainly the public ID. Re-check the MAC to be sure before
		// burning another attempt.
		if _, macErr := r.repo.GetByMAC(ctx, mac); macErr == nil {
			return nil, ErrDeviceExists
		}

		r.logger.Debug("public id collision, retrying",
			"public_id", publicID,
			"attempt", attempt+1,
		)
	}

	return nil, ErrIDGenerationExhausted
}

// Get retrieves a device by its internal identifier.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	return r.repo.GetByID(ctx, id)
}

// GetByMAC retrieves a device by its MAC address.
func (r *Registry) GetByMAC(ctx context.Context, mac string) (*Device, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}
	return r.repo.GetByMAC(ctx, normalized)
}

// GetByPublicID retrieves a device by its topic-facing public ID.
func (r *Registry) GetByPublicID(ctx context.Context, publicID string) (*Device, error) {
	return r.repo.GetByPublicID(ctx, publicID)
}

// List retrieves all devices that are not soft-deleted.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	return r.repo.List(ctx)
}

// Update applies a sparse update to an existing device.
func (r *Registry) Update(ctx context.Context, id string, params UpdateParams) (*Device, error) {
	if err := r.repo.Update(ctx, id, params); err != nil {
		return nil, err
	}

	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.logger.Info("device updated", "id", id)
	return device, nil
}

// SetClientMode sets the client mode flag for a device.
func (r *Registry) SetClientMode(ctx context.Context, id string, on bool) error {
	if err := r.repo.SetClientMode(ctx, id, on); err != nil {
		return err
	}

	r.logger.Debug("client mode changed", "id", id, "on", on)
	return nil
}

// Delete soft-deletes a device.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.SoftDelete(ctx, id); err != nil {
		return err
	}

	r.logger.Info("device deleted", "id", id)
	return nil
}
