package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	// ErrConfigMissing is returned when the credential file does not exist.
	ErrConfigMissing = errors.New("credential file not found")
	// ErrConfigInvalid is returned when the credential file cannot be parsed or lacks a required key.
	ErrConfigInvalid = errors.New("credential file invalid")
)

// RequiredKeys are the keys every credential file must define.
var RequiredKeys = []string{"db_username", "db_password", "host", "port", "db"}

// Credentials holds the database connection parameters read from the credential file.
type Credentials struct {
	// Present but empty values are accepted, e.g. a password-less local database.
	Username string `mapstructure:"db_username"`
	Password string `mapstructure:"db_password"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	Database string `mapstructure:"db"`
}

var validate = validator.New()

// String renders the credentials with the password redacted.
func (c Credentials) String() string {
	return fmt.Sprintf("%s:***@%s:%d/%s", c.Username, c.Host, c.Port, c.Database)
}

// Load reads the credential file at path. A missing file yields ErrConfigMissing;
// an unreadable file or one lacking any of RequiredKeys yields ErrConfigInvalid.
func Load(path string, logger *zap.Logger) (Credentials, error) {
	creds, err := load(path)
	if err != nil {
		logger.Error("Failed to load credentials", zap.String("path", path), zap.Error(err))
		return Credentials{}, err
	}
	logger.Info("Loaded credentials", zap.String("path", path), zap.Stringer("credentials", creds))
	return creds, nil
}

func load(path string) (Credentials, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, fmt.Errorf("%w: %s", ErrConfigMissing, path)
		}
		return Credentials{}, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}
	if info.IsDir() {
		return Credentials{}, fmt.Errorf("%w: %s is a directory", ErrConfigInvalid, path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		return Credentials{}, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}

	var missing []string
	for _, key := range RequiredKeys {
		if !v.IsSet(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("%w: %s: missing required keys: %s", ErrConfigInvalid, path, strings.Join(missing, ", "))
	}

	var creds Credentials
	if err := v.Unmarshal(&creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}
	if err := validate.Struct(creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}
	return creds, nil
}
