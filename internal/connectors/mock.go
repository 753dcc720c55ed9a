package connectors

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	mrand "math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MockAtlasConnector — дев-двойник настоящего Atlas-коннектора: отвечает на
// весь набор операций по зашитым фикстурам, без внешних вызовов. Пароли
// db-пользователей хранит как bcrypt-хэши — как хранил бы настоящий бэкенд.
type MockAtlasConnector struct {
	mu    sync.Mutex
	users map[string]string // username -> bcrypt hash
}

func NewMockAtlasConnector() *MockAtlasConnector {
	return &MockAtlasConnector{users: make(map[string]string)}
}

type callParams struct {
	Cluster     string  `json:"cluster"`
	Database    string  `json:"database"`
	Collection  string  `json:"collection"`
	Name        string  `json:"name"`
	Username    string  `json:"username"`
	IP          string  `json:"ip"`
	Comment     string  `json:"comment"`
	WindowHours float64 `json:"window_hours"`
}

// Фикстуры: кластеры, базы, коллекции с индексами и профилем запросов.
type mockIndex struct {
	Name string
	Keys []mockIndexKey
}

type mockIndexKey struct {
	Field string
	Dir   int // 1 asc, -1 desc
}

type mockCollection struct {
	Name    string
	Fields  map[string]string // поле -> тип
	Indexes []mockIndex
	Filters []string // поля, по которым реально фильтруют запросы
}

var mockClusters = map[string]struct {
	Provider string
	Region   string
	Tier     string
	State    string
	DBs      map[string][]mockCollection
}{
	"production": {
		Provider: "AWS", Region: "US_EAST_1", Tier: "M30", State: "IDLE",
		DBs: map[string][]mockCollection{
			"ecommerce": {
				{
					Name:   "orders",
					Fields: map[string]string{"_id": "objectId", "user_id": "string", "status": "string", "total": "double", "created_at": "date"},
					Indexes: []mockIndex{
						{Name: "user_id_1", Keys: []mockIndexKey{{"user_id", 1}}},
						{Name: "user_id_1_status_1", Keys: []mockIndexKey{{"user_id", 1}, {"status", 1}}},
						{Name: "created_at_1", Keys: []mockIndexKey{{"created_at", 1}}},
						{Name: "created_at_-1", Keys: []mockIndexKey{{"created_at", -1}}},
					},
					Filters: []string{"user_id", "status", "total"},
				},
				{
					Name:   "products",
					Fields: map[string]string{"_id": "objectId", "sku": "string", "category": "string", "price": "double"},
					Indexes: []mockIndex{
						{Name: "sku_1", Keys: []mockIndexKey{{"sku", 1}}},
						{Name: "sku_1_dup", Keys: []mockIndexKey{{"sku", 1}}},
					},
					Filters: []string{"sku", "category"},
				},
			},
			"analytics": {
				{
					Name:   "events",
					Fields: map[string]string{"_id": "objectId", "type": "string", "session_id": "string", "ts": "date"},
					Indexes: []mockIndex{
						{Name: "ts_1", Keys: []mockIndexKey{{"ts", 1}}},
					},
					Filters: []string{"type", "ts"},
				},
			},
		},
	},
	"staging": {
		Provider: "GCP", Region: "CENTRAL_US", Tier: "M10", State: "IDLE",
		DBs: map[string][]mockCollection{
			"ecommerce": {
				{
					Name:   "orders",
					Fields: map[string]string{"_id": "objectId", "user_id": "string", "status": "string"},
					Indexes: []mockIndex{
						{Name: "user_id_1", Keys: []mockIndexKey{{"user_id", 1}}},
					},
					Filters: []string{"user_id", "status"},
				},
			},
		},
	},
	"dev": {
		Provider: "AWS", Region: "EU_WEST_1", Tier: "M0", State: "IDLE",
		DBs: map[string][]mockCollection{
			"sandbox": {
				{
					Name:    "scratch",
					Fields:  map[string]string{"_id": "objectId", "note": "string"},
					Indexes: nil,
					Filters: nil,
				},
			},
		},
	},
}

// Call реализует интерфейс ExecutionProvider поверх фикстур.
func (c *MockAtlasConnector) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	// Имитируем сетевую задержку, уважая отмену контекста
	latency := time.Duration(10+mrand.Intn(40)) * time.Millisecond
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var p callParams
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, &ExecError{Kind: KindMalformed, Op: op, Msg: "bad payload", Cause: err}
		}
	}

	switch op {
	case "atlas.clusters.list":
		return c.listClusters()
	case "atlas.clusters.create":
		return marshal(map[string]interface{}{
			"status": "created", "name": p.Name, "provider": "AWS", "region": "US_EAST_1", "tier": "M0",
		})
	case "atlas.clusters.inspect":
		return c.inspectCluster(op, p.Cluster)
	case "atlas.clusters.connect":
		if _, err := c.cluster(op, p.Cluster); err != nil {
			return nil, err
		}
		return marshal(map[string]interface{}{"status": "connected", "cluster": p.Cluster})
	case "atlas.accesslist.add":
		return marshal(map[string]interface{}{
			"status": "added", "ip": p.IP, "comment": p.Comment,
		})
	case "atlas.dbusers.create":
		return c.createDBUser(p.Username)
	case "atlas.dbusers.resetpw":
		return c.resetPassword(p.Username)
	case "atlas.perf.analyze":
		return c.analyzePerf(op, p)
	case "atlas.databases.list":
		return c.listDatabases(op, p.Cluster)
	case "atlas.collections.list":
		return c.listCollections(op, p.Cluster, p.Database)
	case "atlas.schema.analyze":
		return c.analyzeSchema(op, p)
	case "atlas.indexes.missing":
		return c.missingIndexes(op, p.Cluster, p.Database)
	case "atlas.indexes.redundant":
		return c.redundantIndexes(op, p.Cluster, p.Database)
	default:
		return nil, &ExecError{Kind: KindMalformed, Op: op, Msg: "operation not supported by connector"}
	}
}

func (c *MockAtlasConnector) cluster(op, name string) (map[string][]mockCollection, error) {
	cl, ok := mockClusters[name]
	if !ok {
		return nil, &ExecError{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("cluster %q not found", name)}
	}
	return cl.DBs, nil
}

func (c *MockAtlasConnector) listClusters() ([]byte, error) {
	names := make([]string, 0, len(mockClusters))
	for name := range mockClusters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		cl := mockClusters[name]
		out = append(out, map[string]interface{}{
			"name": name, "provider": cl.Provider, "region": cl.Region, "tier": cl.Tier, "state": cl.State,
		})
	}
	return marshal(map[string]interface{}{"clusters": out})
}

func (c *MockAtlasConnector) inspectCluster(op, name string) ([]byte, error) {
	cl, ok := mockClusters[name]
	if !ok {
		return nil, &ExecError{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("cluster %q not found", name)}
	}
	dbs := make([]string, 0, len(cl.DBs))
	for db := range cl.DBs {
		dbs = append(dbs, db)
	}
	sort.Strings(dbs)
	return marshal(map[string]interface{}{
		"name": name, "provider": cl.Provider, "region": cl.Region,
		"tier": cl.Tier, "state": cl.State, "databases": dbs,
	})
}

func (c *MockAtlasConnector) createDBUser(username string) ([]byte, error) {
	password, hash, err := generateCredential()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.users[strings.ToLower(username)] = hash
	c.mu.Unlock()
	return marshal(map[string]interface{}{
		"status": "created", "username": username, "password": password,
	})
}

func (c *MockAtlasConnector) resetPassword(username string) ([]byte, error) {
	password, hash, err := generateCredential()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.users[strings.ToLower(username)] = hash
	c.mu.Unlock()
	// Плейнтекст отдаем ровно один раз, дальше живет только хэш
	return marshal(map[string]interface{}{
		"status": "password_reset", "username": username, "password": password,
	})
}

func generateCredential() (plaintext, hash string, err error) {
	buf := make([]byte, 16)
	if _, err = rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate password: %w", err)
	}
	plaintext = hex.EncodeToString(buf)
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash password: %w", err)
	}
	return plaintext, string(hashed), nil
}

func (c *MockAtlasConnector) analyzePerf(op string, p callParams) ([]byte, error) {
	if _, err := c.cluster(op, p.Cluster); err != nil {
		return nil, err
	}
	window := p.WindowHours
	if window == 0 {
		window = 24
	}
	return marshal(map[string]interface{}{
		"cluster":      p.Cluster,
		"window_hours": window,
		"cpu_percent":  41.5,
		"slow_queries": []map[string]interface{}{
			{"ns": "ecommerce.orders", "millis": 1840, "filter": "{user_id: ..., status: ...}"},
			{"ns": "analytics.events", "millis": 920, "filter": "{type: ...}"},
		},
	})
}

func (c *MockAtlasConnector) listDatabases(op, cluster string) ([]byte, error) {
	dbs, err := c.cluster(op, cluster)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dbs))
	for db := range dbs {
		names = append(names, db)
	}
	sort.Strings(names)
	return marshal(map[string]interface{}{"cluster": cluster, "databases": names})
}

func (c *MockAtlasConnector) findDatabase(op, cluster, database string) ([]mockCollection, error) {
	dbs, err := c.cluster(op, cluster)
	if err != nil {
		return nil, err
	}
	colls, ok := dbs[database]
	if !ok {
		return nil, &ExecError{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("database %q not found", database)}
	}
	return colls, nil
}

func (c *MockAtlasConnector) listCollections(op, cluster, database string) ([]byte, error) {
	colls, err := c.findDatabase(op, cluster, database)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(colls))
	for _, col := range colls {
		names = append(names, col.Name)
	}
	sort.Strings(names)
	return marshal(map[string]interface{}{"database": database, "collections": names})
}

func (c *MockAtlasConnector) analyzeSchema(op string, p callParams) ([]byte, error) {
	colls, err := c.findDatabase(op, p.Cluster, p.Database)
	if err != nil {
		return nil, err
	}
	for _, col := range colls {
		if col.Name == p.Collection {
			return marshal(map[string]interface{}{
				"database": p.Database, "collection": col.Name, "fields": col.Fields,
			})
		}
	}
	return nil, &ExecError{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("collection %q not found", p.Collection)}
}

// missingIndexes сравнивает профиль фильтрации с первыми полями индексов:
// фильтруемое поле без индекса-префикса — кандидат на новый индекс.
func (c *MockAtlasConnector) missingIndexes(op, cluster, database string) ([]byte, error) {
	colls, err := c.findDatabase(op, cluster, database)
	if err != nil {
		return nil, err
	}

	suggestions := []map[string]interface{}{}
	for _, col := range colls {
		covered := make(map[string]bool)
		for _, idx := range col.Indexes {
			if len(idx.Keys) > 0 {
				covered[idx.Keys[0].Field] = true
			}
		}
		for _, field := range col.Filters {
			if !covered[field] {
				suggestions = append(suggestions, map[string]interface{}{
					"collection": col.Name,
					"field":      field,
					"suggestion": fmt.Sprintf("create index on %s(%s)", col.Name, field),
				})
			}
		}
	}
	return marshal(map[string]interface{}{"database": database, "missing_indexes": suggestions})
}

// redundantIndexes ищет три вида избыточности: точный дубликат, префиксную
// (короткий индекс покрыт длинным) и реверсную (то же поле, обратный порядок).
func (c *MockAtlasConnector) redundantIndexes(op, cluster, database string) ([]byte, error) {
	colls, err := c.findDatabase(op, cluster, database)
	if err != nil {
		return nil, err
	}

	findings := []map[string]interface{}{}
	for _, col := range colls {
		idxs := col.Indexes
		for i := 0; i < len(idxs); i++ {
			for j := i + 1; j < len(idxs); j++ {
				if f := checkRedundancy(col.Name, idxs[i], idxs[j]); f != nil {
					findings = append(findings, f)
				}
			}
		}
	}
	return marshal(map[string]interface{}{"database": database, "redundant_indexes": findings})
}

func checkRedundancy(collection string, a, b mockIndex) map[string]interface{} {
	finding := func(redundant, covers, kind, recommendation string) map[string]interface{} {
		return map[string]interface{}{
			"collection":      collection,
			"redundant_index": redundant,
			"covers_same_as":  covers,
			"redundancy_type": kind,
			"recommendation":  recommendation,
		}
	}

	if sameKeys(a, b) {
		return finding(a.Name, b.Name, "exact_duplicate",
			fmt.Sprintf("remove index %q, it is identical to %q", a.Name, b.Name))
	}
	if isPrefix(a, b) {
		return finding(a.Name, b.Name, "prefix_redundant",
			fmt.Sprintf("consider removing index %q, it is covered by %q", a.Name, b.Name))
	}
	if isPrefix(b, a) {
		return finding(b.Name, a.Name, "prefix_redundant",
			fmt.Sprintf("consider removing index %q, it is covered by %q", b.Name, a.Name))
	}
	if isReverse(a, b) {
		return finding(a.Name, b.Name, "reverse_redundant",
			fmt.Sprintf("indexes %q and %q are reverse duplicates, keep one unless both sort orders are used", a.Name, b.Name))
	}
	return nil
}

func sameKeys(a, b mockIndex) bool {
	if len(a.Keys) != len(b.Keys) {
		return false
	}
	for i := range a.Keys {
		if a.Keys[i] != b.Keys[i] {
			return false
		}
	}
	return true
}

// isPrefix: короткий индекс a покрывается началом более длинного b.
func isPrefix(a, b mockIndex) bool {
	if len(a.Keys) == 0 || len(a.Keys) >= len(b.Keys) {
		return false
	}
	for i := range a.Keys {
		if a.Keys[i] != b.Keys[i] {
			return false
		}
	}
	return true
}

// isReverse: одиночные индексы по одному полю с противоположным направлением.
func isReverse(a, b mockIndex) bool {
	return len(a.Keys) == 1 && len(b.Keys) == 1 &&
		a.Keys[0].Field == b.Keys[0].Field &&
		a.Keys[0].Dir == -b.Keys[0].Dir
}

func marshal(v map[string]interface{}) ([]byte, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mock response: %w", err)
	}
	return out, nil
}
