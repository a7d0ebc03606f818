// Package server exposes a running relay over HTTP.
//
// Three endpoints are served:
//
//	/ubx      websocket; every relayed UBX frame as one binary message
//	/metrics  Prometheus exposition (when a handler is supplied)
//	/status   JSON document with build info, uptime and relay statistics
//
// The Hub is an io.Writer, so it is combined with the primary output using
// io.MultiWriter and receives exactly the bytes the receiver side sees,
// NAV-SOL included. Clients that cannot keep up lose frames; the relay is
// never slowed down by a subscriber.
//
// # Usage Example
//
//	hub := server.NewHub(server.DefaultClientBuffer, collector)
//	srv, err := server.New(server.Config{Addr: ":8090"}, hub,
//	    server.WithMetrics(collector.Handler()),
//	    server.WithStatus(func() any { return driver.Stats() }),
//	)
//	if err != nil {
//	    return err
//	}
//	go srv.Start(ctx)
//
//	driver := relay.New(port, io.MultiWriter(port, hub), relay.DefaultOptions())
//
// # TLS
//
// When Config.CertPath and Config.KeyPath are set the listener is wrapped in
// TLS 1.2+ and clients connect with wss://.
package server
