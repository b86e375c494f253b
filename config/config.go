// Package config loads address-definition files: lists of symbols with the
// strategy data the resolver needs to locate them. Definitions live next to
// the host application's own configuration so signature updates after a
// target-module rebuild do not require a recompile.
package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/viper"

	"byteweaver/address"
)

// Definition is one symbol to register with the address database. Exactly one
// strategy field should be set; when none is, the symbol is treated as an
// export, and an explicit export flag overrides any other strategy fields.
// Address and Offset accept decimal or 0x-prefixed hex strings.
type Definition struct {
	Symbol  string `mapstructure:"symbol"`
	Module  string `mapstructure:"module"`
	Export  bool   `mapstructure:"export"`
	Address string `mapstructure:"address"`
	Offset  string `mapstructure:"offset"`
	Pattern string `mapstructure:"pattern"`
}

// File is a parsed definition file.
type File struct {
	Addresses []Definition `mapstructure:"addresses"`
}

// Load reads a definition file. The format (yaml, json, toml) is inferred
// from the file extension.
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var file File
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &file, nil
}

func parseUintptr(value string) (uintptr, error) {
	parsed, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, err
	}
	return uintptr(parsed), nil
}

// Populate registers every definition with the database, choosing the entry
// factory matching the definition's strategy data. Invalid definitions are
// collected and reported together; valid ones are still registered.
func (f *File) Populate(db *address.DB) error {
	var errs []error
	for i, def := range f.Addresses {
		if def.Symbol == "" || def.Module == "" {
			errs = append(errs, fmt.Errorf("definition %d: symbol and module are required", i))
			continue
		}

		switch {
		case def.Export:
			db.AddExport(def.Symbol, def.Module)

		case def.Address != "":
			addr, err := parseUintptr(def.Address)
			if err != nil {
				errs = append(errs, fmt.Errorf("definition %d (%s): bad address %q: %w", i, def.Symbol, def.Address, err))
				continue
			}
			db.AddKnownAddress(def.Symbol, def.Module, addr)

		case def.Offset != "":
			offset, err := parseUintptr(def.Offset)
			if err != nil {
				errs = append(errs, fmt.Errorf("definition %d (%s): bad offset %q: %w", i, def.Symbol, def.Offset, err))
				continue
			}
			db.AddKnownOffset(def.Symbol, def.Module, offset)

		case def.Pattern != "":
			if err := db.AddScanPattern(def.Symbol, def.Module, def.Pattern); err != nil {
				errs = append(errs, fmt.Errorf("definition %d (%s): %w", i, def.Symbol, err))
				continue
			}

		default:
			db.AddExport(def.Symbol, def.Module)
		}
	}
	return errors.Join(errs...)
}
