// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/mculink/mculink/transport/channel"
	_ "github.com/mculink/mculink/transport/http"
	_ "github.com/mculink/mculink/transport/io"
	_ "github.com/mculink/mculink/transport/jetstream"
	_ "github.com/mculink/mculink/transport/kafka"
	_ "github.com/mculink/mculink/transport/nats"
	_ "github.com/mculink/mculink/transport/rabbitmq"
)
