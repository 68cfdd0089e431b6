package server

import "github.com/Carmen-Shannon/oxy-render/log"

// ServerBuilderOption is a functional option for configuring a Server via NewServer.
type ServerBuilderOption func(*server)

// WithLogger replaces the server's logger.
func WithLogger(logger log.Logger) ServerBuilderOption {
	return func(s *server) {
		s.logger = logger
	}
}

// WithMaxFormSize sets the largest accepted multipart body in bytes.
//
// Parameters:
//   - n: the size limit, ignored when not positive
//
// Returns:
//   - ServerBuilderOption: a function that applies the form size option to a server
func WithMaxFormSize(n int64) ServerBuilderOption {
	return func(s *server) {
		if n > 0 {
			s.maxFormSize = n
		}
	}
}

// WithMaxJSONSize sets the largest accepted JSON body in bytes.
//
// Parameters:
//   - n: the size limit, ignored when not positive
//
// Returns:
//   - ServerBuilderOption: a function that applies the JSON size option to a server
func WithMaxJSONSize(n int64) ServerBuilderOption {
	return func(s *server) {
		if n > 0 {
			s.maxJSONSize = n
		}
	}
}
