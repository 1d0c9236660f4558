package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/bitfantasy/siteqa/internal/middleware"
	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_siteqa"
	JWTSecret  = "siteqa-test-jwt-secret"
)

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB connects to postgres with an isolated schema per test, dropped on cleanup.
// Skips the test when no database is reachable.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "siteqa")
	password := getEnv("DB_PASSWORD", "siteqa")
	dbname := getEnv("DB_NAME", "siteqa")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		host, port, user, password, dbname)

	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("database not available: %v", err)
	}
	sqlSetup, _ := setupDB.DB()
	if err := sqlSetup.Ping(); err != nil {
		sqlSetup.Close()
		t.Skipf("database not available: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup.Close()

	// search_path in the DSN so every pooled connection uses the test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(entity.Models()...); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupRouter gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup API group behind the JWT middleware
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken valid JWT for the test secret
func GenerateTestToken(userID, name string, roles []string) string {
	if roles == nil {
		roles = []string{}
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"email": userID + "@test.local",
		"roles": roles,
		"iss":   "siteqa",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// EngineerToken site engineer without QM capability
func EngineerToken() string {
	return GenerateTestToken("u-engineer", "Sam Engineer", []string{entity.RoleSiteEngineer})
}

// QMToken quality manager
func QMToken() string {
	return GenerateTestToken("u-qm", "Quinn Manager", []string{entity.RoleQualityManager})
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse decodes the response envelope
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// Data the envelope's data object
func Data(w *httptest.ResponseRecorder) map[string]interface{} {
	data, _ := ParseResponse(w)["data"].(map[string]interface{})
	return data
}

// SeedProject project with default QA settings
func SeedProject(t *testing.T, db *gorm.DB, id, region string) *entity.Project {
	t.Helper()
	p := &entity.Project{
		ID:                      id,
		Code:                    "P-" + id,
		Name:                    "Project " + id,
		SOPARegion:              region,
		HoldPointApprovalPolicy: entity.HoldPointApprovalAny,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("Failed to seed project: %v", err)
	}
	return p
}

// SeedMember project role assignment
func SeedMember(t *testing.T, db *gorm.DB, projectID, userID, role string) {
	t.Helper()
	m := &entity.ProjectMember{ID: fmt.Sprintf("m-%s-%s", projectID, userID), ProjectID: projectID, UserID: userID, Role: role}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("Failed to seed member: %v", err)
	}
}

// SeedLot lot with an ITP whose items have the given point types, in sequence order.
// Items before completedUpTo (exclusive, 1-based sequence) are completed.
func SeedLot(t *testing.T, db *gorm.DB, projectID, lotID string, pointTypes []string, completedUpTo int) (*entity.Lot, []entity.ITPChecklistItem) {
	t.Helper()
	lot := &entity.Lot{ID: lotID, ProjectID: projectID, LotNumber: "LOT-" + lotID, Status: entity.LotStatusInProgress}
	if err := db.Create(lot).Error; err != nil {
		t.Fatalf("Failed to seed lot: %v", err)
	}
	inst := &entity.ITPInstance{ID: "itp-" + lotID, LotID: lotID, TemplateName: "Concrete pour"}
	if err := db.Create(inst).Error; err != nil {
		t.Fatalf("Failed to seed ITP instance: %v", err)
	}
	items := make([]entity.ITPChecklistItem, 0, len(pointTypes))
	for i, pt := range pointTypes {
		seq := i + 1
		item := entity.ITPChecklistItem{
			ID:          fmt.Sprintf("%s-item-%d", lotID, seq),
			InstanceID:  inst.ID,
			Sequence:    seq,
			Description: fmt.Sprintf("Check %d", seq),
			PointType:   pt,
			IsCompleted: seq < completedUpTo,
		}
		if err := db.Create(&item).Error; err != nil {
			t.Fatalf("Failed to seed checklist item: %v", err)
		}
		items = append(items, item)
	}
	return lot, items
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
