// Copyright 2024 The RangeKV Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package catalog

// Config tunes how the accessor reads the catalog tables.
type Config struct {
	// ScannerCaching is the row-batch hint handed to the store for
	// catalog scans.
	ScannerCaching int
	// UseCatalogReplicas permits stale reads from replicas of the
	// catalog tables themselves. Writes always go to the primary.
	UseCatalogReplicas bool
}

// DefaultConfig returns the defaults used when no explicit configuration
// is supplied.
func DefaultConfig() Config {
	return Config{
		ScannerCaching:     100,
		UseCatalogReplicas: false,
	}
}
