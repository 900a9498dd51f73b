// Package persistence provides SQLite-backed snapshots of the simulation
// state and an append-only event log.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/culture"
	"github.com/talgya/polis/internal/engine"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/social"
	"github.com/talgya/polis/internal/trust"
)

// DB wraps a SQLite connection for simulation snapshots.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY,
		wealth REAL NOT NULL,
		class INTEGER NOT NULL,
		class_entered_tick INTEGER NOT NULL,
		education REAL NOT NULL,
		overall REAL NOT NULL,
		tier TEXT NOT NULL,
		trust_propensity REAL NOT NULL,
		trust_sensitivity REAL NOT NULL,
		cultural_fluidity REAL NOT NULL,
		cultural_resistance REAL NOT NULL,
		cultural_influence REAL NOT NULL,
		revolutionary_tendency REAL NOT NULL,
		tx_success_rate REAL NOT NULL,
		tx_punctuality REAL NOT NULL,
		tx_defaults INTEGER NOT NULL,
		born_tick INTEGER NOT NULL,
		scores_json TEXT NOT NULL,
		trustworthiness_json TEXT NOT NULL,
		culture_json TEXT NOT NULL,
		preferences_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trust_edges (
		from_id INTEGER NOT NULL,
		to_id INTEGER NOT NULL,
		confidence REAL NOT NULL,
		interactions INTEGER NOT NULL,
		created_tick INTEGER NOT NULL,
		updated_tick INTEGER NOT NULL,
		context TEXT NOT NULL,
		kind TEXT NOT NULL,
		propagation_weight REAL NOT NULL,
		dims_json TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id)
	);

	CREATE TABLE IF NOT EXISTS organizations (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		founder INTEGER NOT NULL,
		created_tick INTEGER NOT NULL,
		members_json TEXT NOT NULL,
		delegations_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS communities (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		created_tick INTEGER NOT NULL,
		members_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS eras (
		idx INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		start_tick INTEGER NOT NULL,
		end_tick INTEGER NOT NULL,
		start_generation INTEGER NOT NULL,
		snapshot_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS event_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		type TEXT NOT NULL,
		meta_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sim_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_event_log_tick ON event_log(tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Save writes a full snapshot of the core (full replace). Implements
// engine.Snapshotter.
func (db *DB) Save(c *engine.Core) error {
	if err := db.saveAgents(c.Store().All()); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	if err := db.saveEdges(c); err != nil {
		return fmt.Errorf("save edges: %w", err)
	}
	if err := db.saveSocial(c.Social()); err != nil {
		return fmt.Errorf("save social: %w", err)
	}
	if err := db.saveCulture(c.Culture()); err != nil {
		return fmt.Errorf("save culture: %w", err)
	}

	meta := map[string]string{
		"tick":                fmt.Sprintf("%d", c.Tick()),
		"revolution_progress": fmt.Sprintf("%g", c.Mobility().RevolutionProgress()),
		"generation":          fmt.Sprintf("%d", c.Culture().Generation()),
	}
	for k, v := range meta {
		if err := db.SaveMeta(k, v); err != nil {
			return fmt.Errorf("save meta: %w", err)
		}
	}

	slog.Info("snapshot saved", "tick", c.Tick(), "agents", c.Store().Len(), "edges", c.Graph().EdgeCount())
	return nil
}

func (db *DB) saveAgents(all []*agents.Agent) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO agents
		(id, wealth, class, class_entered_tick, education, overall, tier,
		 trust_propensity, trust_sensitivity, cultural_fluidity, cultural_resistance,
		 cultural_influence, revolutionary_tendency, tx_success_rate, tx_punctuality,
		 tx_defaults, born_tick, scores_json, trustworthiness_json, culture_json, preferences_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range all {
		scoresJSON, _ := json.Marshal(a.Scores)
		trustJSON, _ := json.Marshal(a.Trustworthiness)
		cultureJSON, _ := json.Marshal(a.Culture)
		prefsJSON, _ := json.Marshal(a.EconomicPreferences)

		_, err := stmt.Exec(
			a.ID, a.Wealth, a.Class, a.ClassEnteredTick, a.Education, a.Overall, a.Tier,
			a.TrustPropensity, a.TrustSensitivity, a.CulturalFluidity, a.CulturalResistance,
			a.CulturalInfluence, a.RevolutionaryTendency, a.TxSuccessRate, a.TxPunctuality,
			a.TxDefaults, a.BornTick,
			string(scoresJSON), string(trustJSON), string(cultureJSON), string(prefsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

func (db *DB) saveEdges(c *engine.Core) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM trust_edges"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO trust_edges
		(from_id, to_id, confidence, interactions, created_tick, updated_tick,
		 context, kind, propagation_weight, dims_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	g := c.Graph()
	for _, a := range c.Store().All() {
		for _, e := range g.OutgoingEdges(a.ID) {
			dimsJSON, _ := json.Marshal(e.Dims)
			_, err := stmt.Exec(
				e.From, e.To, e.Confidence, e.Interactions, e.CreatedTick, e.UpdatedTick,
				e.Context, e.Kind, e.PropagationWeight, string(dimsJSON),
			)
			if err != nil {
				return fmt.Errorf("insert edge %d->%d: %w", e.From, e.To, err)
			}
		}
	}
	return tx.Commit()
}

func (db *DB) saveSocial(reg *social.Registry) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM organizations"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM communities"); err != nil {
		return err
	}

	for _, org := range reg.Organizations() {
		members := make([]uint64, 0, len(org.Members))
		for m := range org.Members {
			members = append(members, uint64(m))
		}
		membersJSON, _ := json.Marshal(members)
		delegationsJSON, _ := json.Marshal(org.Delegations)

		_, err := tx.Exec(`INSERT INTO organizations
			(id, name, kind, founder, created_tick, members_json, delegations_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			org.ID, org.Name, org.Kind, org.Founder, org.CreatedTick,
			string(membersJSON), string(delegationsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert organization %d: %w", org.ID, err)
		}
	}

	for _, comm := range reg.Communities() {
		members := make([]uint64, 0, len(comm.Members))
		for m := range comm.Members {
			members = append(members, uint64(m))
		}
		membersJSON, _ := json.Marshal(members)

		_, err := tx.Exec(`INSERT INTO communities (id, name, created_tick, members_json)
			VALUES (?, ?, ?, ?)`,
			comm.ID, comm.Name, comm.CreatedTick, string(membersJSON),
		)
		if err != nil {
			return fmt.Errorf("insert community %d: %w", comm.ID, err)
		}
	}
	return tx.Commit()
}

func (db *DB) saveCulture(cult *culture.Engine) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM eras"); err != nil {
		return err
	}
	for i, era := range cult.Eras() {
		snapJSON, _ := json.Marshal(era.Snapshot)
		_, err := tx.Exec(`INSERT INTO eras
			(idx, name, start_tick, end_tick, start_generation, snapshot_json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			i, era.Name, era.StartTick, era.EndTick, era.StartGeneration, string(snapJSON),
		)
		if err != nil {
			return fmt.Errorf("insert era %d: %w", i, err)
		}
	}

	globalJSON, _ := json.Marshal(cult.Global())
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO sim_meta (key, value) VALUES ('global_culture', ?)",
		string(globalJSON),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendEvents appends committed events to the log.
func (db *DB) AppendEvents(evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ev := range evs {
		metaJSON, _ := json.Marshal(ev.Meta)
		_, err := tx.Exec(
			"INSERT INTO event_log (event_id, seq, tick, type, meta_json) VALUES (?, ?, ?, ?, ?)",
			ev.ID, ev.Seq, ev.Tick, string(ev.Type), string(metaJSON),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveMeta stores a key-value pair in simulation metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO sim_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM sim_meta WHERE key = ?", key)
	return value, err
}

// Restore loads a snapshot into a freshly constructed core. Returns false
// when the database holds no snapshot.
func (db *DB) Restore(c *engine.Core) (bool, error) {
	tickStr, err := db.GetMeta("tick")
	if err != nil {
		return false, nil
	}

	var tick uint64
	fmt.Sscanf(tickStr, "%d", &tick)
	c.RestoreTick(tick)

	if err := db.restoreAgents(c); err != nil {
		return false, fmt.Errorf("restore agents: %w", err)
	}
	if err := db.restoreEdges(c); err != nil {
		return false, fmt.Errorf("restore edges: %w", err)
	}
	if err := db.restoreSocial(c); err != nil {
		return false, fmt.Errorf("restore social: %w", err)
	}
	if err := db.restoreCulture(c); err != nil {
		return false, fmt.Errorf("restore culture: %w", err)
	}

	if s, err := db.GetMeta("revolution_progress"); err == nil {
		var p float64
		fmt.Sscanf(s, "%g", &p)
		c.Mobility().SetProgress(p)
	}

	slog.Info("snapshot restored", "tick", tick, "agents", c.Store().Len(), "edges", c.Graph().EdgeCount())
	return true, nil
}

type agentRow struct {
	ID                    uint64  `db:"id"`
	Wealth                float64 `db:"wealth"`
	Class                 int     `db:"class"`
	ClassEnteredTick      uint64  `db:"class_entered_tick"`
	Education             float64 `db:"education"`
	Overall               float64 `db:"overall"`
	Tier                  string  `db:"tier"`
	TrustPropensity       float64 `db:"trust_propensity"`
	TrustSensitivity      float64 `db:"trust_sensitivity"`
	CulturalFluidity      float64 `db:"cultural_fluidity"`
	CulturalResistance    float64 `db:"cultural_resistance"`
	CulturalInfluence     float64 `db:"cultural_influence"`
	RevolutionaryTendency float64 `db:"revolutionary_tendency"`
	TxSuccessRate         float64 `db:"tx_success_rate"`
	TxPunctuality         float64 `db:"tx_punctuality"`
	TxDefaults            int     `db:"tx_defaults"`
	BornTick              uint64  `db:"born_tick"`
	ScoresJSON            string  `db:"scores_json"`
	TrustworthinessJSON   string  `db:"trustworthiness_json"`
	CultureJSON           string  `db:"culture_json"`
	PreferencesJSON       string  `db:"preferences_json"`
}

func (db *DB) restoreAgents(c *engine.Core) error {
	var rows []agentRow
	if err := db.conn.Select(&rows, "SELECT * FROM agents ORDER BY id"); err != nil {
		return err
	}

	for _, r := range rows {
		a := &agents.Agent{
			ID:                    agents.AgentID(r.ID),
			Wealth:                r.Wealth,
			Class:                 r.Class,
			ClassEnteredTick:      r.ClassEnteredTick,
			Education:             r.Education,
			Overall:               r.Overall,
			Tier:                  r.Tier,
			TrustPropensity:       r.TrustPropensity,
			TrustSensitivity:      r.TrustSensitivity,
			CulturalFluidity:      r.CulturalFluidity,
			CulturalResistance:    r.CulturalResistance,
			CulturalInfluence:     r.CulturalInfluence,
			RevolutionaryTendency: r.RevolutionaryTendency,
			TxSuccessRate:         r.TxSuccessRate,
			TxPunctuality:         r.TxPunctuality,
			TxDefaults:            r.TxDefaults,
			BornTick:              r.BornTick,
		}
		json.Unmarshal([]byte(r.ScoresJSON), &a.Scores)
		json.Unmarshal([]byte(r.TrustworthinessJSON), &a.Trustworthiness)
		json.Unmarshal([]byte(r.CultureJSON), &a.Culture)
		json.Unmarshal([]byte(r.PreferencesJSON), &a.EconomicPreferences)

		if err := c.AdoptAgent(a); err != nil {
			return err
		}
	}
	return nil
}

type edgeRow struct {
	FromID            uint64  `db:"from_id"`
	ToID              uint64  `db:"to_id"`
	Confidence        float64 `db:"confidence"`
	Interactions      int     `db:"interactions"`
	CreatedTick       uint64  `db:"created_tick"`
	UpdatedTick       uint64  `db:"updated_tick"`
	Context           string  `db:"context"`
	Kind              string  `db:"kind"`
	PropagationWeight float64 `db:"propagation_weight"`
	DimsJSON          string  `db:"dims_json"`
}

func (db *DB) restoreEdges(c *engine.Core) error {
	var rows []edgeRow
	if err := db.conn.Select(&rows, "SELECT * FROM trust_edges ORDER BY from_id, to_id"); err != nil {
		return err
	}

	for _, r := range rows {
		e := &trust.Edge{
			From:              agents.AgentID(r.FromID),
			To:                agents.AgentID(r.ToID),
			Confidence:        r.Confidence,
			Interactions:      r.Interactions,
			CreatedTick:       r.CreatedTick,
			UpdatedTick:       r.UpdatedTick,
			Context:           r.Context,
			Kind:              r.Kind,
			PropagationWeight: r.PropagationWeight,
		}
		json.Unmarshal([]byte(r.DimsJSON), &e.Dims)
		c.Graph().RestoreEdge(e)
	}
	return nil
}

type orgRow struct {
	ID              uint64 `db:"id"`
	Name            string `db:"name"`
	Kind            string `db:"kind"`
	Founder         uint64 `db:"founder"`
	CreatedTick     uint64 `db:"created_tick"`
	MembersJSON     string `db:"members_json"`
	DelegationsJSON string `db:"delegations_json"`
}

type communityRow struct {
	ID          uint64 `db:"id"`
	Name        string `db:"name"`
	CreatedTick uint64 `db:"created_tick"`
	MembersJSON string `db:"members_json"`
}

func (db *DB) restoreSocial(c *engine.Core) error {
	var orgRows []orgRow
	if err := db.conn.Select(&orgRows, "SELECT * FROM organizations ORDER BY id"); err != nil {
		return err
	}
	var commRows []communityRow
	if err := db.conn.Select(&commRows, "SELECT * FROM communities ORDER BY id"); err != nil {
		return err
	}

	orgs := make([]*social.Organization, 0, len(orgRows))
	for _, r := range orgRows {
		org := &social.Organization{
			ID:          r.ID,
			Name:        r.Name,
			Kind:        r.Kind,
			Founder:     agents.AgentID(r.Founder),
			CreatedTick: r.CreatedTick,
			Members:     make(map[agents.AgentID]struct{}),
			Delegations: make(map[agents.AgentID]agents.AgentID),
		}
		var members []uint64
		json.Unmarshal([]byte(r.MembersJSON), &members)
		for _, m := range members {
			org.Members[agents.AgentID(m)] = struct{}{}
			if a, err := c.Store().Get(agents.AgentID(m)); err == nil {
				a.Organizations[org.ID] = struct{}{}
			}
		}
		json.Unmarshal([]byte(r.DelegationsJSON), &org.Delegations)
		orgs = append(orgs, org)
	}

	comms := make([]*social.Community, 0, len(commRows))
	for _, r := range commRows {
		comm := &social.Community{
			ID:          r.ID,
			Name:        r.Name,
			CreatedTick: r.CreatedTick,
			Members:     make(map[agents.AgentID]struct{}),
		}
		var members []uint64
		json.Unmarshal([]byte(r.MembersJSON), &members)
		for _, m := range members {
			comm.Members[agents.AgentID(m)] = struct{}{}
			if a, err := c.Store().Get(agents.AgentID(m)); err == nil {
				a.Communities[comm.ID] = struct{}{}
			}
		}
		comms = append(comms, comm)
	}

	c.Social().Restore(orgs, comms)
	return nil
}

type eraRow struct {
	Idx             int    `db:"idx"`
	Name            string `db:"name"`
	StartTick       uint64 `db:"start_tick"`
	EndTick         uint64 `db:"end_tick"`
	StartGeneration uint64 `db:"start_generation"`
	SnapshotJSON    string `db:"snapshot_json"`
}

func (db *DB) restoreCulture(c *engine.Core) error {
	var rows []eraRow
	if err := db.conn.Select(&rows, "SELECT * FROM eras ORDER BY idx"); err != nil {
		return err
	}

	eras := make([]culture.Era, 0, len(rows))
	for _, r := range rows {
		era := culture.Era{
			Name:            r.Name,
			StartTick:       r.StartTick,
			EndTick:         r.EndTick,
			StartGeneration: r.StartGeneration,
		}
		json.Unmarshal([]byte(r.SnapshotJSON), &era.Snapshot)
		eras = append(eras, era)
	}

	var global []float64
	if s, err := db.GetMeta("global_culture"); err == nil {
		json.Unmarshal([]byte(s), &global)
	}

	var generation uint64
	if s, err := db.GetMeta("generation"); err == nil {
		fmt.Sscanf(s, "%d", &generation)
	}

	c.Culture().Restore(global, generation, eras)
	return nil
}
