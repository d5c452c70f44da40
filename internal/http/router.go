package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Rooms        *RoomHandler
	Reservations *ReservationHandler
	Recurring    *RecurringHandler
	Status       *StatusHandler
	Stats        *StatsHandler
	WS           *WSHandler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.Rooms != nil {
		mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Rooms.List(w, r)
			case http.MethodPost:
				cfg.Rooms.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
			id, sub := splitPath(strings.TrimPrefix(r.URL.Path, "/rooms/"))
			if id == "" {
				http.NotFound(w, r)
				return
			}
			ctx := ContextWithRoomID(r.Context(), id)
			r = r.WithContext(ctx)

			switch sub {
			case "":
				switch r.Method {
				case http.MethodGet:
					cfg.Rooms.Get(w, r)
				case http.MethodPut:
					cfg.Rooms.Update(w, r)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodPut)
				}
			case "status":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				if cfg.Status == nil {
					http.NotFound(w, r)
					return
				}
				cfg.Status.Room(w, r)
			case "schedule":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				if cfg.Reservations == nil {
					http.NotFound(w, r)
					return
				}
				cfg.Reservations.Schedule(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Status != nil {
		mux.HandleFunc("/status/overview", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Status.Overview(w, r)
		})
	}

	if cfg.Reservations != nil {
		mux.HandleFunc("/reservations", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Reservations.List(w, r)
			case http.MethodPost:
				cfg.Reservations.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/reservations/", func(w http.ResponseWriter, r *http.Request) {
			id, sub := splitPath(strings.TrimPrefix(r.URL.Path, "/reservations/"))
			if id == "" {
				http.NotFound(w, r)
				return
			}
			ctx := ContextWithReservationID(r.Context(), id)
			r = r.WithContext(ctx)

			switch sub {
			case "":
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Reservations.Get(w, r)
			case "confirm":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Reservations.Confirm(w, r)
			case "cancel":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Reservations.Cancel(w, r)
			default:
				http.NotFound(w, r)
			}
		})
		mux.HandleFunc("/availability", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Reservations.CheckAvailability(w, r)
		})
	}

	if cfg.Recurring != nil {
		mux.HandleFunc("/recurring", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Recurring.List(w, r)
			case http.MethodPost:
				cfg.Recurring.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/recurring/preview", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Recurring.Preview(w, r)
		})
		mux.HandleFunc("/recurring/", func(w http.ResponseWriter, r *http.Request) {
			id, sub := splitPath(strings.TrimPrefix(r.URL.Path, "/recurring/"))
			if id == "" || sub != "" {
				http.NotFound(w, r)
				return
			}
			ctx := ContextWithPatternID(r.Context(), id)
			r = r.WithContext(ctx)
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Recurring.Get(w, r)
		})
	}

	if cfg.Stats != nil {
		mux.HandleFunc("/stats/dashboard", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Stats.Dashboard(w, r)
		})
		mux.HandleFunc("/activity", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Stats.Activity(w, r)
		})
	}

	if cfg.WS != nil {
		mux.HandleFunc("/ws/overview", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.WS.Overview(w, r)
		})
		mux.HandleFunc("/ws/rooms/", func(w http.ResponseWriter, r *http.Request) {
			id, sub := splitPath(strings.TrimPrefix(r.URL.Path, "/ws/rooms/"))
			if id == "" || sub != "" {
				http.NotFound(w, r)
				return
			}
			ctx := ContextWithRoomID(r.Context(), id)
			r = r.WithContext(ctx)
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.WS.Room(w, r)
		})
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

// splitPath separates the first path segment from the remainder.
func splitPath(rest string) (id, sub string) {
	parts := strings.SplitN(rest, "/", 2)
	id = parts[0]
	if len(parts) == 2 {
		sub = strings.TrimSuffix(parts[1], "/")
	}
	return id, sub
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
