package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/api"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/config"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/services"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/store"
	"github.com/stitts-dev/fpl-squad-optimizer/pkg/logger"
)

type RouterTestSuite struct {
	suite.Suite
	db     *store.DB
	router *gin.Engine
}

func (s *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	db, err := store.NewConnection("sqlite", ":memory:", false)
	s.Require().NoError(err)
	s.db = db

	log := logger.Discard()
	s.router = api.NewRouter(api.Dependencies{
		Service: services.NewSquadService(services.Options{DrawsPerGroup: 6, TopPerGroup: 2}, log),
		DB:      db,
		Config:  &config.Config{OptimizationTimeout: 10},
		Logger:  log,
	})
}

func (s *RouterTestSuite) TearDownTest() {
	s.NoError(s.db.Close())
}

func testPool() models.Pool {
	p := func(id int, pos models.Position, team string, cost int, ep float64) models.Player {
		return models.Player{ID: id, Position: pos, Team: team, Cost: cost,
			Metrics: map[string]float64{models.MetricEPNext: ep, models.MetricTotalPoints: ep * 10}}
	}
	return models.Pool{Players: []models.Player{
		p(1, models.Goalkeeper, "T1", 40, 5),
		p(2, models.Goalkeeper, "T2", 30, 3),
		p(3, models.Defender, "T1", 40, 6),
		p(4, models.Defender, "T3", 30, 2),
		p(5, models.Forward, "T1", 50, 8),
		p(6, models.Forward, "T2", 40, 4),
	}}
}

// runConfig is a three-player game: one of each of GKP, DEF and FWD
func runConfig() gin.H {
	one := gin.H{"min": 1, "max": 1}
	return gin.H{
		"constraints": gin.H{
			"budget":           130,
			"required_count":   3,
			"position_bounds":  gin.H{"GKP": one, "DEF": one, "FWD": one},
			"default_team_max": 2,
		},
		"weights": gin.H{"name": "weights", "add": gin.H{"ep_next": 1}},
		"pick_groups": []gin.H{{
			"name":      "all",
			"weights":   gin.H{"name": "all", "add": gin.H{"ep_next": 1}},
			"budget":    130,
			"positions": gin.H{"GKP": 1, "DEF": 1, "FWD": 1},
		}},
	}
}

func (s *RouterTestSuite) post(path string, body interface{}) *httptest.ResponseRecorder {
	data, err := json.Marshal(body)
	s.Require().NoError(err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterTestSuite) decode(w *httptest.ResponseRecorder, dest interface{}) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}

func squadIDs(players []models.Player) []int {
	ids := make([]int, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	return ids
}

func (s *RouterTestSuite) TestOptimizeInlinePool() {
	w := s.post("/api/v1/squads/optimize", gin.H{"pool": testPool(), "config": runConfig()})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("MISS", w.Header().Get("X-Cache"))
	s.NotEmpty(w.Header().Get("X-Request-ID"))

	var res services.OptimizeResult
	s.decode(w, &res)
	s.Equal(models.StatusOK, res.Status)
	s.ElementsMatch([]int{2, 3, 5}, squadIDs(res.Squad.Players))
	s.Require().NotNil(res.Captain)
	s.Equal(5, res.Captain.ID)
}

func (s *RouterTestSuite) TestOptimizeFromSnapshot() {
	id, err := s.db.SaveSnapshot(context.Background(), "gw1", testPool())
	s.Require().NoError(err)

	w := s.post("/api/v1/squads/optimize", gin.H{"snapshot_id": id, "config": runConfig()})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var res services.OptimizeResult
	s.decode(w, &res)
	s.ElementsMatch([]int{2, 3, 5}, squadIDs(res.Squad.Players))
}

func (s *RouterTestSuite) TestOptimizeErrors() {
	w := s.post("/api/v1/squads/optimize", gin.H{"snapshot_id": "missing", "config": runConfig()})
	s.Equal(http.StatusNotFound, w.Code)

	w = s.post("/api/v1/squads/optimize", gin.H{"config": runConfig()})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.post("/api/v1/squads/optimize", gin.H{"pool": testPool(), "config": gin.H{"unknown": true}})
	s.Equal(http.StatusBadRequest, w.Code)

	var body struct {
		Code string `json:"code"`
	}
	s.decode(w, &body)
	s.Equal("INVALID_REQUEST", body.Code)
}

func (s *RouterTestSuite) TestOptimizeInfeasibleIsNotAnError() {
	cfg := runConfig()
	cfg["constraints"].(gin.H)["budget"] = 50
	cfg["pick_groups"] = []gin.H{}

	w := s.post("/api/v1/squads/optimize", gin.H{"pool": testPool(), "config": cfg})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var res services.OptimizeResult
	s.decode(w, &res)
	s.Equal(models.StatusInfeasible, res.Status)
	s.Empty(res.Squad.Players)
}

func (s *RouterTestSuite) TestSampleIsReproducible() {
	body := gin.H{"pool": testPool(), "config": runConfig(), "seed": 42}

	var first, second struct {
		Seed   int64 `json:"seed"`
		Result struct {
			Status models.Status        `json:"status"`
			Squads []models.RankedSquad `json:"squads"`
		} `json:"result"`
	}
	w := s.post("/api/v1/squads/sample", body)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(w, &first)
	w = s.post("/api/v1/squads/sample", body)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &second)

	s.Equal(int64(42), first.Seed)
	s.Equal(models.StatusOK, first.Result.Status)
	s.Require().NotEmpty(first.Result.Squads)
	s.Require().Len(second.Result.Squads, len(first.Result.Squads))
	for i := range first.Result.Squads {
		s.Equal(squadIDs(first.Result.Squads[i].Squad.Players), squadIDs(second.Result.Squads[i].Squad.Players))
	}
}

func (s *RouterTestSuite) TestSwaps() {
	w := s.post("/api/v1/transfers/swaps", gin.H{
		"pool":   testPool(),
		"config": runConfig(),
		"squad":  []int{2, 3, 5},
		"limit":  2,
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var res struct {
		Total      int                        `json:"total"`
		Candidates []models.TransferCandidate `json:"candidates"`
	}
	s.decode(w, &res)
	s.Equal(5, res.Total)
	s.Len(res.Candidates, 2)
	s.True(res.Candidates[0].IsHold())
}

func (s *RouterTestSuite) TestSwapsUnknownPlayer() {
	w := s.post("/api/v1/transfers/swaps", gin.H{"pool": testPool(), "config": runConfig(), "squad": []int{99}})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterTestSuite) TestReoptimize() {
	w := s.post("/api/v1/transfers/reoptimize", gin.H{
		"pool":           testPool(),
		"config":         runConfig(),
		"squad":          []int{2, 4, 6},
		"transfers":      2,
		"free_transfers": 1,
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var plan struct {
		Status    models.Status   `json:"status"`
		Out       []models.Player `json:"out"`
		In        []models.Player `json:"in"`
		PointCost float64         `json:"point_cost"`
		NetGain   float64         `json:"net_gain"`
	}
	s.decode(w, &plan)
	s.Equal(models.StatusOK, plan.Status)
	s.Equal([]int{4, 6}, squadIDs(plan.Out))
	s.Equal([]int{3, 5}, squadIDs(plan.In))
	s.InDelta(4.0, plan.PointCost, 1e-9)
	s.InDelta(4.0, plan.NetGain, 1e-9)
}

func (s *RouterTestSuite) TestScoreWeightsSorted() {
	w := s.post("/api/v1/scoring/weights", gin.H{
		"pool":    testPool(),
		"weights": gin.H{"name": "ep", "add": gin.H{"ep_next": 1}},
		"sorted":  true,
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var res struct {
		Weights string                  `json:"weights"`
		Players []services.ScoredPlayer `json:"players"`
	}
	s.decode(w, &res)
	s.Equal("ep", res.Weights)
	s.Require().Len(res.Players, 6)
	s.Equal(5, res.Players[0].ID)
	s.InDelta(1.0, res.Players[0].Weight, 1e-9)
	s.Equal(4, res.Players[5].ID)
}

func (s *RouterTestSuite) TestSnapshotRoutes() {
	w := s.post("/api/v1/snapshots", gin.H{"label": "gw2", "pool": testPool()})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID          string `json:"id"`
		PlayerCount int    `json:"player_count"`
	}
	s.decode(w, &created)
	s.Equal(6, created.PlayerCount)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/"+created.ID, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusOK, rec.Code)

	var pool models.Pool
	s.decode(rec, &pool)
	s.Len(pool.Players, 6)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/snapshots?limit=5", nil)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), created.ID)
}

func (s *RouterTestSuite) TestHealth() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Require().Equal(http.StatusOK, w.Code)

	var status struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	s.decode(w, &status)
	s.Equal("ok", status.Status)
	s.Equal("ok", status.Checks["database"])
	s.Equal("not_configured", status.Checks["redis"])

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
