//go:build !postgres && !sqlite

package model

import "fmt"

func InitDatabase(_ *Config) (*Store, error) {
	return nil, fmt.Errorf("build with -tags postgres or -tags sqlite")
}
