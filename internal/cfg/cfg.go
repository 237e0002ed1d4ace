package cfg

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ccxcon/ccxcon/internal/env"
)

const FileName = ".ccxcon"

// Path returns the client config file viper loaded, or $HOME/.ccxcon when none was found.
func Path() string {
	if path := viper.ConfigFileUsed(); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, FileName)
}

// Update applies f to the key values stored at path and writes them back, creating the file if needed.
func Update(path string, f func(map[string]string)) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	values := make(map[string]string)
	if err = env.NewDecoder(file).Decode(values); err != nil {
		return err
	}

	f(values)

	if err = file.Truncate(0); err != nil {
		return err
	}
	if _, err = file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return env.NewEncoder(file).Encode(values)
}

// Get returns the key values stored at path. A missing file is empty.
func Get(path string) (map[string]string, error) {
	values := make(map[string]string)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, err
	}
	defer file.Close()

	if err = env.NewDecoder(file).Decode(values); err != nil {
		return nil, err
	}
	return values, nil
}
