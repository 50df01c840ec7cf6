// Package core owns the reference data (rooms, movies) and the shared queue tables.
package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/marquee-cinema/marquee/engine"
	"github.com/marquee-cinema/marquee/engine/db"
)

const publishedOutboxTTL = 7 * 24 * 60 * 60

type Module struct {
	db *sql.DB
}

func New(d *sql.DB) *Module {
	db.MustMigrate(d, Migration)
	return &Module{db: d}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/api/rooms", router.WithAuthn(m.handleListRooms))
	router.Handle("POST", "/api/rooms", router.WithAuthn(m.handleCreateRoom))
	router.Handle("GET", "/api/movies", router.WithAuthn(m.handleListMovies))
	router.Handle("POST", "/api/movies", router.WithAuthn(m.handleCreateMovie))
	router.Handle("GET", "/api/movies/:id", router.WithAuthn(m.handleGetMovie))
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Hour, m.cleanupOutbox()))
}

func (m *Module) cleanupOutbox() engine.PollingFunc {
	return engine.Cleanup(m.db, "published booking outbox",
		"DELETE FROM booking_outbox WHERE published IS NOT NULL AND published < unixepoch() - $1", publishedOutboxTTL)
}

type Room struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Format   string `json:"format"`
	Capacity int    `json:"capacity"`
	Active   bool   `json:"active"`
}

type Movie struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	DurationMinutes int    `json:"duration_minutes"`
	Language        string `json:"language"`
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetRoom returns an error wrapping sql.ErrNoRows when the room does not exist.
func GetRoom(ctx context.Context, q Querier, id int64) (*Room, error) {
	room := &Room{}
	err := q.QueryRowContext(ctx, "SELECT id, name, format, capacity, active FROM rooms WHERE id = $1", id).
		Scan(&room.ID, &room.Name, &room.Format, &room.Capacity, &room.Active)
	if err != nil {
		return nil, fmt.Errorf("looking up room %d: %w", id, err)
	}
	return room, nil
}

// GetMovie returns an error wrapping sql.ErrNoRows when the movie does not exist.
func GetMovie(ctx context.Context, q Querier, id int64) (*Movie, error) {
	movie := &Movie{}
	err := q.QueryRowContext(ctx, "SELECT id, title, duration_minutes, language FROM movies WHERE id = $1", id).
		Scan(&movie.ID, &movie.Title, &movie.DurationMinutes, &movie.Language)
	if err != nil {
		return nil, fmt.Errorf("looking up movie %d: %w", id, err)
	}
	return movie, nil
}

type createRoomRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Format   string `json:"format" validate:"required,oneof=2D 3D IMAX 4DX"`
	Capacity int    `json:"capacity" validate:"gte=1,lte=2000"`
}

func (m *Module) handleCreateRoom(r *http.Request, ps httprouter.Params) engine.Response {
	req := &createRoomRequest{}
	if err := engine.ReadJSON(r, req); err != nil {
		return engine.ClientErrorf("%s", err)
	}

	room := &Room{Name: req.Name, Format: req.Format, Capacity: req.Capacity, Active: true}
	err := m.db.QueryRowContext(r.Context(), "INSERT INTO rooms (name, format, capacity) VALUES ($1, $2, $3) RETURNING id", req.Name, req.Format, req.Capacity).Scan(&room.ID)
	if err != nil {
		return engine.Error(err)
	}
	return engine.JSONStatus(http.StatusCreated, room)
}

func (m *Module) handleListRooms(r *http.Request, ps httprouter.Params) engine.Response {
	rows, err := m.db.QueryContext(r.Context(), "SELECT id, name, format, capacity, active FROM rooms ORDER BY name")
	if err != nil {
		return engine.Error(err)
	}
	defer rows.Close()

	rooms := []*Room{}
	for rows.Next() {
		room := &Room{}
		if err := rows.Scan(&room.ID, &room.Name, &room.Format, &room.Capacity, &room.Active); err != nil {
			return engine.Error(err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return engine.Error(err)
	}
	return engine.JSON(rooms)
}

type createMovieRequest struct {
	Title           string `json:"title" validate:"required,max=200"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=1,lte=1440"`
	Language        string `json:"language" validate:"max=50"`
}

func (m *Module) handleCreateMovie(r *http.Request, ps httprouter.Params) engine.Response {
	req := &createMovieRequest{}
	if err := engine.ReadJSON(r, req); err != nil {
		return engine.ClientErrorf("%s", err)
	}

	movie := &Movie{Title: req.Title, DurationMinutes: req.DurationMinutes, Language: req.Language}
	err := m.db.QueryRowContext(r.Context(), "INSERT INTO movies (title, duration_minutes, language) VALUES ($1, $2, $3) RETURNING id", req.Title, req.DurationMinutes, req.Language).Scan(&movie.ID)
	if err != nil {
		return engine.Error(err)
	}
	return engine.JSONStatus(http.StatusCreated, movie)
}

func (m *Module) handleListMovies(r *http.Request, ps httprouter.Params) engine.Response {
	rows, err := m.db.QueryContext(r.Context(), "SELECT id, title, duration_minutes, language FROM movies ORDER BY title")
	if err != nil {
		return engine.Error(err)
	}
	defer rows.Close()

	movies := []*Movie{}
	for rows.Next() {
		movie := &Movie{}
		if err := rows.Scan(&movie.ID, &movie.Title, &movie.DurationMinutes, &movie.Language); err != nil {
			return engine.Error(err)
		}
		movies = append(movies, movie)
	}
	if err := rows.Err(); err != nil {
		return engine.Error(err)
	}
	return engine.JSON(movies)
}

func (m *Module) handleGetMovie(r *http.Request, ps httprouter.Params) engine.Response {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf("invalid movie id")
	}
	movie, err := GetMovie(r.Context(), m.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.NotFoundf("movie not found")
	}
	if err != nil {
		return engine.Error(err)
	}
	return engine.JSON(movie)
}
