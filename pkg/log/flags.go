/*
Copyright The EsRoll Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package log

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Flags contains the set of values necessary for configuring
// the logging subsystem from the command line
type Flags struct {
	logLevel       string
	logDestination string
}

// AddFlags binds the logging configuration flags to a given flagset
func (l *Flags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&l.logLevel, "log-level", DefaultLevelString,
		"the desired log level, one of error, warning, info, debug and trace")
	flags.StringVar(&l.logDestination, "log-destination", "",
		"where the log stream will be written (defaults to standard error)")
}

// ConfigureLogging configures the logging subsystem honoring the
// flags passed from the user
func (l *Flags) ConfigureLogging() error {
	level, known := ParseLevel(l.logLevel)

	dest := os.Stderr
	if l.logDestination != "" {
		logStream, err := os.OpenFile(l.logDestination, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666) //#nosec
		if err != nil {
			return fmt.Errorf("cannot open log destination %v: %w", l.logDestination, err)
		}
		dest = logStream
	}

	logger := NewLogger(level, dest)
	SetLogger(logger)

	if !known {
		logger.Info("Invalid log level, defaulting",
			"level", l.logLevel, "default", DefaultLevelString)
	}

	return nil
}
