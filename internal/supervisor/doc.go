// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

/*
Package supervisor runs the server's long-lived components under a suture v4
tree.

	RootSupervisor ("idem-realtime")
	├── DataSupervisor ("data-layer")
	│   ├── FuncService "presence-recorder" (AsyncRecorder.Run)
	│   ├── PeriodicService "session-cleanup" (badger/memory stores)
	│   └── PeriodicService "presence-refresh" (if the Redis mirror is on)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── HubService
	│   └── NATSIngressService (if NATS_ENABLED, build tag: nats)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Each layer restarts independently with suture's failure counting: a service
that fails FailureThreshold times within the decay window is held back for
FailureBackoff. Supervisor events go through sutureslog to the zerolog
logger (see logging.NewSlogHandler).

Usage Example:

	tree, err := supervisor.NewSupervisorTree(
	    slog.New(logging.NewSlogHandler()),
	    supervisor.TreeConfigFrom(cfg.Supervisor),
	)
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.Addr(), cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)

See Also:

  - internal/supervisor/services: the suture.Service wrappers
  - github.com/thejerf/suture/v4
*/
package supervisor
