package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"tasktracker/domain"
)

// Broker wakes stream subscribers when the task list changes. Its Sync
// method lets it ride the sync dispatcher like any other remote.
type Broker struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan struct{}]struct{})}
}

func (b *Broker) Sync(context.Context, []domain.Task) (bool, error) {
	b.notify()
	return true, nil
}

// Subscribers reports the number of open streams.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(ch chan struct{}) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// notify coalesces: a subscriber that has not caught up yet keeps a
// single pending wakeup.
func (b *Broker) notify() {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// streamTasks sends the current view as a server-sent event, then again
// after every change, until the client goes away.
func streamTasks(svc TaskService, broker *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		filter, err := domain.ParseFilter(c.QueryParam("filter"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Field: "filter"})
		}
		sortBy, err := domain.ParseSortBy(c.QueryParam("sort"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Field: "sort"})
		}
		query := c.QueryParam("q")

		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		h := c.Response().Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set(echo.HeaderCacheControl, "no-cache")
		h.Set(echo.HeaderConnection, "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		c.Response().WriteHeader(http.StatusOK)

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)
		for {
			tasks := svc.View(filter, query, sortBy)
			data, err := sonic.ConfigStd.Marshal(tasksResponse{Tasks: tasks, Count: len(tasks)})
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write(append(append([]byte("data: "), data...), '\n', '\n')); err != nil {
				return nil
			}
			flusher.Flush()

			select {
			case <-ctx.Done():
				return nil
			case <-ch:
			}
		}
	}
}
