// Copyright 2025 CascadeDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"

	"github.com/BurntSushi/toml"

	"github.com/cascadedb/cascade/pkg/common/cerr"
	"github.com/cascadedb/cascade/pkg/logutil"
)

// ExchangeParameters configures the exchange service of one compute
// node.
type ExchangeParameters struct {
	// ListenAddress is the address the exchange service listens on.
	ListenAddress string `toml:"listen-address"`

	// ReceiverBufferSize is the packet channel buffer of one receiver.
	// Default: 64.
	ReceiverBufferSize int `toml:"receiver-buffer-size"`

	// ScanConcurrency is the goroutine pool size used to fan a scan out
	// to storage peers. Default: 8.
	ScanConcurrency int `toml:"scan-concurrency"`

	// DisableCompress turns lz4 compression of batch payloads off.
	DisableCompress bool `toml:"disable-compress"`
}

// Configuration is the toml file layout.
type Configuration struct {
	Exchange ExchangeParameters `toml:"exchange"`
	Log      logutil.Config     `toml:"log"`
}

func (c *Configuration) SetDefaults() {
	if c.Exchange.ListenAddress == "" {
		c.Exchange.ListenAddress = "127.0.0.1:16001"
	}
	if c.Exchange.ReceiverBufferSize == 0 {
		c.Exchange.ReceiverBufferSize = 64
	}
	if c.Exchange.ScanConcurrency == 0 {
		c.Exchange.ScanConcurrency = 8
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Load reads the configuration file, applies defaults and sets up the
// global logger.
func Load(path string) (*Configuration, error) {
	cfg := &Configuration{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, cerr.NewInvalidInput(context.Background(), "parse config %s: %s", path, err)
	}
	cfg.SetDefaults()
	logutil.SetupLogger(cfg.Log)
	return cfg, nil
}
