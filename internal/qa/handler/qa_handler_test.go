package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/engine"
	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"github.com/bitfantasy/siteqa/internal/qa/repository"
	"github.com/bitfantasy/siteqa/internal/qa/service"
	"github.com/bitfantasy/siteqa/internal/qa/sse"
	"github.com/bitfantasy/siteqa/internal/qa/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Wednesday
var testNow = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func setupQATest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	svc := service.NewServices(repos, service.Settings{
		DefaultRegion:  "NSW",
		MinNoticeDays:  1,
		ApprovalPolicy: entity.HoldPointApprovalAny,
	}, nil)
	svc.SetClock(func() time.Time { return testNow })
	hub := sse.NewHub(nil)
	svc.SetHub(hub)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	NewHandlers(svc, hub, nil).Register(api)
	return router, db
}

func version(data map[string]interface{}) int {
	v, _ := data["version"].(float64)
	return int(v)
}

func createNCR(t *testing.T, r *gin.Engine, projectID, severity string) map[string]interface{} {
	t.Helper()
	w := testutil.DoRequest(r, "POST", "/api/v1/ncrs", map[string]interface{}{
		"project_id":  projectID,
		"title":       "Honeycombing on pier cap",
		"description": "Visible voids after stripping formwork",
		"category":    "workmanship",
		"severity":    severity,
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return testutil.Data(w)
}

func TestNCRHandler_MajorLifecycle(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")

	ncr := createNCR(t, r, "p1", "major")
	id := ncr["id"].(string)
	assert.Equal(t, "open", ncr["status"])
	assert.Equal(t, "NCR-0001", ncr["ncr_number"])
	assert.Equal(t, true, ncr["qm_approval_required"])

	w := testutil.DoRequest(r, "POST", "/api/v1/ncrs/"+id+"/respond", map[string]interface{}{
		"root_cause":        "Insufficient vibration",
		"corrective_action": "Grout repair",
		"preventive_action": "Vibration toolbox talk",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "investigating", testutil.Data(w)["status"])

	// engineers cannot review
	w = testutil.DoRequest(r, "POST", "/api/v1/ncrs/"+id+"/qm-review", map[string]interface{}{"decision": "accept"}, testutil.EngineerToken())
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, engine.CodeQMCapabilityRequired, testutil.Data(w)["code"])

	w = testutil.DoRequest(r, "POST", "/api/v1/ncrs/"+id+"/qm-review", map[string]interface{}{"decision": "accept"}, testutil.QMToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "verification", testutil.Data(w)["status"])

	w = testutil.DoRequest(r, "POST", "/api/v1/ncrs/"+id+"/close", map[string]interface{}{}, testutil.EngineerToken())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, engine.CodeQMApprovalRequired, testutil.Data(w)["code"])

	w = testutil.DoRequest(r, "POST", "/api/v1/ncrs/"+id+"/qm-approve", map[string]interface{}{"comment": "Repair accepted"}, testutil.QMToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, testutil.Data(w)["qm_approved_at"])

	w = testutil.DoRequest(r, "POST", "/api/v1/ncrs/"+id+"/close", map[string]interface{}{"verification_notes": "Checked on site"}, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	closed := testutil.Data(w)
	assert.Equal(t, "closed", closed["status"])
	assert.Empty(t, closed["available_actions"])

	// transitions and the rejections are all in the history
	w = testutil.DoRequest(r, "GET", "/api/v1/ncrs/"+id+"/history?page_size=50", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code)
	items := testutil.Data(w)["items"].([]interface{})
	assert.GreaterOrEqual(t, len(items), 7)
}

func TestNCRHandler_RespondValidation(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")
	id := createNCR(t, r, "p1", "minor")["id"].(string)

	w := testutil.DoRequest(r, "POST", "/api/v1/ncrs/"+id+"/respond", map[string]interface{}{
		"root_cause": "Late delivery",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	data := testutil.Data(w)
	assert.Equal(t, "guard_violation", data["kind"])
	assert.Equal(t, engine.CodeResponseIncomplete, data["code"])

	w = testutil.DoRequest(r, "GET", "/api/v1/ncrs/"+id, nil, testutil.EngineerToken())
	assert.Equal(t, "open", testutil.Data(w)["status"])
}

func TestNCRHandler_StaleVersion(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")
	ncr := createNCR(t, r, "p1", "minor")

	w := testutil.DoRequest(r, "POST", "/api/v1/ncrs/"+ncr["id"].(string)+"/respond", map[string]interface{}{
		"root_cause":        "a",
		"corrective_action": "b",
		"preventive_action": "c",
		"version":           version(ncr) + 5,
	}, testutil.EngineerToken())
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestNCRHandler_CreateValidation(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")

	w := testutil.DoRequest(r, "POST", "/api/v1/ncrs", map[string]interface{}{
		"project_id": "p1",
		"title":      "Missing fields",
		"severity":   "critical",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := testutil.Data(w)["fields"].(map[string]interface{})
	assert.Equal(t, "oneof", fields["Severity"])
	assert.Equal(t, "required", fields["Description"])

	w = testutil.DoRequest(r, "POST", "/api/v1/ncrs", map[string]interface{}{
		"project_id":  "nope",
		"title":       "Unknown project",
		"description": "x",
		"category":    "other",
		"severity":    "minor",
	}, testutil.EngineerToken())
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.DoRequest(r, "GET", "/api/v1/ncrs/unknown", nil, testutil.EngineerToken())
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.DoRequest(r, "GET", "/api/v1/ncrs", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNCRHandler_CheckRole(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")
	testutil.SeedMember(t, db, "p1", "u-engineer", entity.RoleQualityManager)

	// project membership grants QM capability on top of the token roles
	w := testutil.DoRequest(r, "GET", "/api/v1/ncrs/check-role/p1", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := testutil.Data(w)
	assert.Equal(t, true, data["is_quality_manager"])
	assert.ElementsMatch(t, []interface{}{entity.RoleSiteEngineer, entity.RoleQualityManager}, data["roles"])

	w = testutil.DoRequest(r, "GET", "/api/v1/ncrs/check-role/p1", nil, testutil.GenerateTestToken("u-other", "Other", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, testutil.Data(w)["is_quality_manager"])
}

func TestNCRHandler_EvidenceUnlocksVerification(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")
	id := createNCR(t, r, "p1", "minor")["id"].(string)

	w := testutil.DoRequest(r, "POST", "/api/v1/ncrs/"+id+"/respond", map[string]interface{}{
		"root_cause": "a", "corrective_action": "b", "preventive_action": "c",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code)

	w = testutil.DoRequest(r, "POST", "/api/v1/ncrs/"+id+"/submit-for-verification", map[string]interface{}{}, testutil.EngineerToken())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, engine.CodeEvidenceRequired, testutil.Data(w)["code"])

	w = testutil.DoRequest(r, "POST", "/api/v1/ncrs/"+id+"/evidence", map[string]interface{}{
		"type":      "photo",
		"file_name": "repair.jpg",
		"url":       "https://files.example.com/repair.jpg",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = testutil.DoRequest(r, "POST", "/api/v1/ncrs/"+id+"/submit-for-verification", map[string]interface{}{
		"rectification_notes": "Patched and cured",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "verification", testutil.Data(w)["status"])
}

func releaseBody(lotID, itemID string, body map[string]interface{}) map[string]interface{} {
	if body == nil {
		body = map[string]interface{}{}
	}
	body["lot_id"] = lotID
	body["item_id"] = itemID
	return body
}

func TestHoldPointHandler_PrerequisitesIncomplete(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")
	// item 1 and 2 incomplete, 3 is the hold point
	testutil.SeedLot(t, db, "p1", "lot1", []string{entity.PointTypeStandard, entity.PointTypeWitness, entity.PointTypeHold}, 1)

	w := testutil.DoRequest(r, "POST", "/api/v1/holdpoints/request-release",
		releaseBody("lot1", "lot1-item-3", nil), testutil.EngineerToken())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	data := testutil.Data(w)
	assert.Equal(t, engine.CodePrerequisitesIncomplete, data["code"])
	items := data["details"].(map[string]interface{})["incomplete_items"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, float64(1), items[0].(map[string]interface{})["sequence"])
	assert.Equal(t, float64(2), items[1].(map[string]interface{})["sequence"])

	// not a hold point
	w = testutil.DoRequest(r, "POST", "/api/v1/holdpoints/request-release",
		releaseBody("lot1", "lot1-item-1", nil), testutil.EngineerToken())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHoldPointHandler_ItemFromAnotherLot(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")
	testutil.SeedLot(t, db, "p1", "lot1", []string{entity.PointTypeStandard, entity.PointTypeHold}, 2)
	testutil.SeedLot(t, db, "p1", "lot2", []string{entity.PointTypeStandard}, 2)

	scheduled := "2026-03-09"
	w := testutil.DoRequest(r, "POST", "/api/v1/holdpoints/request-release",
		releaseBody("lot2", "lot1-item-2", map[string]interface{}{"scheduled_date": scheduled}), testutil.EngineerToken())
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = testutil.DoRequest(r, "GET", "/api/v1/holdpoints/lot/lot2/item/lot1-item-2", nil, testutil.EngineerToken())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoRequest(r, "POST", "/api/v1/lots/lot2/items/lot1-item-2/complete", nil, testutil.EngineerToken())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// nothing was recorded against either lot
	var count int64
	require.NoError(t, db.Model(&entity.HoldPoint{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHoldPointHandler_NoticeAndRelease(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")
	testutil.SeedLot(t, db, "p1", "lot1", []string{entity.PointTypeStandard, entity.PointTypeHold}, 2)

	today := testNow.Format(time.RFC3339)
	w := testutil.DoRequest(r, "POST", "/api/v1/holdpoints/request-release",
		releaseBody("lot1", "lot1-item-2", map[string]interface{}{"scheduled_date": today}), testutil.EngineerToken())
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	data := testutil.Data(w)
	assert.Equal(t, "notice_warning", data["kind"])
	details := data["details"].(map[string]interface{})
	assert.Equal(t, float64(0), details["working_days_notice"])
	assert.Equal(t, float64(1), details["minimum_notice_days"])

	w = testutil.DoRequest(r, "POST", "/api/v1/holdpoints/request-release",
		releaseBody("lot1", "lot1-item-2", map[string]interface{}{"scheduled_date": today, "override": true}), testutil.EngineerToken())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, engine.CodeOverrideReasonRequired, testutil.Data(w)["code"])

	w = testutil.DoRequest(r, "POST", "/api/v1/holdpoints/request-release",
		releaseBody("lot1", "lot1-item-2", map[string]interface{}{
			"scheduled_date":  today,
			"override":        true,
			"override_reason": "Pour booked, superintendent on site",
			"notified_to":     "super@example.com",
		}), testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	hp := testutil.Data(w)
	assert.Equal(t, "notified", hp["status"])
	assert.Equal(t, true, hp["override_applied"])
	hpID := hp["id"].(string)

	w = testutil.DoRequest(r, "POST", "/api/v1/holdpoints/"+hpID+"/chase", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), testutil.Data(w)["chase_count"])

	w = testutil.DoRequest(r, "POST", "/api/v1/holdpoints/"+hpID+"/release", map[string]interface{}{
		"released_by_name": "Pat Superintendent",
		"release_method":   "digital",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, engine.CodeSignatureRequired, testutil.Data(w)["code"])

	w = testutil.DoRequest(r, "POST", "/api/v1/holdpoints/"+hpID+"/release", map[string]interface{}{
		"released_by_name": "Pat Superintendent",
		"released_by_org":  "Client Co",
		"release_method":   "digital",
		"signature_ref":    "sig-123",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "released", testutil.Data(w)["status"])

	w = testutil.DoRequest(r, "POST", "/api/v1/holdpoints/"+hpID+"/release", map[string]interface{}{
		"released_by_name": "Pat Superintendent",
		"release_method":   "digital",
		"signature_ref":    "sig-123",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, engine.CodeInvalidTransition, testutil.Data(w)["code"])

	w = testutil.DoRequest(r, "GET", "/api/v1/holdpoints/lot/lot1/item/lot1-item-2", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "released", testutil.Data(w)["status"])
}

func TestHoldPointHandler_PreviewAndList(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")
	testutil.SeedLot(t, db, "p1", "lot1", []string{entity.PointTypeStandard, entity.PointTypeStandard, entity.PointTypeHold}, 3)

	w := testutil.DoRequest(r, "POST", "/api/v1/holdpoints/preview-evidence-package",
		map[string]interface{}{"lot_id": "lot1", "item_id": "lot1-item-3"}, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pkg := testutil.Data(w)
	assert.Equal(t, true, pkg["ready_to_request"])
	assert.Len(t, pkg["completed_items"], 2)

	// never requested, still listed as pending
	w = testutil.DoRequest(r, "GET", "/api/v1/holdpoints/project/p1?status=pending", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code)
	list := testutil.Data(w)
	require.Equal(t, float64(1), list["total"])
	pending := list["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "lot1-item-3", pending["item_id"])
	assert.Equal(t, "pending", pending["status"])

	// following Monday, three working days out
	w = testutil.DoRequest(r, "POST", "/api/v1/holdpoints/request-release",
		releaseBody("lot1", "lot1-item-3", map[string]interface{}{"scheduled_date": "2026-03-09"}), testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	requested := testutil.Data(w)
	assert.Nil(t, requested["override_applied"])
	assert.Equal(t, "2026-03-09T00:00:00Z", requested["scheduled_date"])

	w = testutil.DoRequest(r, "GET", "/api/v1/holdpoints/project/p1", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), testutil.Data(w)["total"])

	w = testutil.DoRequest(r, "GET", "/api/v1/holdpoints/project/p1?status=pending", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), testutil.Data(w)["total"])

	w = testutil.DoRequest(r, "GET", "/api/v1/holdpoints/project/p1?overdue=true", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), testutil.Data(w)["total"])
}

func TestClaimHandler_Lifecycle(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")
	testutil.SeedLot(t, db, "p1", "lot1", []string{entity.PointTypeStandard, entity.PointTypeStandard}, 3)
	testutil.SeedLot(t, db, "p1", "lot2", []string{entity.PointTypeStandard, entity.PointTypeHold}, 1)

	w := testutil.DoRequest(r, "POST", "/api/v1/projects/p1/claims", map[string]interface{}{
		"period_start": "2026-02-01T00:00:00Z",
		"period_end":   "2026-02-28T00:00:00Z",
		"lots": []map[string]interface{}{
			{"lot_id": "lot1", "amount": "12000.50"},
			{"lot_id": "lot2", "amount": "8000"},
		},
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	claim := testutil.Data(w)
	claimID := claim["id"].(string)
	assert.Equal(t, "draft", claim["status"])
	assert.Equal(t, "20000.5", claim["total_claimed_amount"])

	w = testutil.DoRequest(r, "GET", fmt.Sprintf("/api/v1/claims/%s/completeness-check", claimID), nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	check := testutil.Data(w)
	lots := check["lots"].([]interface{})
	require.Len(t, lots, 2)
	assert.Equal(t, "lot1", lots[0].(map[string]interface{})["lot_id"])
	assert.Equal(t, "include", lots[0].(map[string]interface{})["recommendation"])
	// lot2's hold point was never requested
	assert.Equal(t, "exclude", lots[1].(map[string]interface{})["recommendation"])
	assert.Equal(t, "12000.5", check["recommended_amount"])
	assert.Equal(t, float64(1), check["exclude_count"])

	w = testutil.DoRequest(r, "PUT", "/api/v1/projects/p1/claims/"+claimID, map[string]interface{}{"status": "certified"}, testutil.EngineerToken())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, engine.CodeInvalidTransition, testutil.Data(w)["code"])

	w = testutil.DoRequest(r, "PUT", "/api/v1/projects/p1/claims/"+claimID, map[string]interface{}{"status": "submitted"}, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	submitted := testutil.Data(w)
	assert.Equal(t, "submitted", submitted["status"])
	deadlines := submitted["deadlines"].(map[string]interface{})
	assert.Equal(t, "NSW", deadlines["region"])
	assert.NotNil(t, deadlines["payment_due"])

	w = testutil.DoRequest(r, "PUT", "/api/v1/projects/p1/claims/"+claimID, map[string]interface{}{
		"period_end": "2026-03-01T00:00:00Z",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, engine.CodeClaimLocked, testutil.Data(w)["code"])

	w = testutil.DoRequest(r, "GET", "/api/v1/projects/p1/claims", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), testutil.Data(w)["total"])

	w = testutil.DoRequest(r, "GET", "/api/v1/claims/"+claimID+"/evidence-package", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Claim_P-p1_1_evidence.xlsx")
	assert.NotZero(t, w.Body.Len())
}

func TestClaimHandler_LotFromOtherProject(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")
	testutil.SeedProject(t, db, "p2", "VIC")
	testutil.SeedLot(t, db, "p2", "lot9", []string{entity.PointTypeStandard}, 2)

	w := testutil.DoRequest(r, "POST", "/api/v1/projects/p1/claims", map[string]interface{}{
		"period_start": "2026-02-01T00:00:00Z",
		"period_end":   "2026-02-28T00:00:00Z",
		"lots":         []map[string]interface{}{{"lot_id": "lot9", "amount": "10"}},
	}, testutil.EngineerToken())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLotHandler_ITPAndSiteRecords(t *testing.T) {
	r, db := setupQATest(t)
	testutil.SeedProject(t, db, "p1", "NSW")

	w := testutil.DoRequest(r, "POST", "/api/v1/projects/p1/lots", map[string]interface{}{
		"lot_number":  "LOT-100",
		"description": "Pier 3 cap",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	lotID := testutil.Data(w)["id"].(string)

	w = testutil.DoRequest(r, "POST", "/api/v1/lots/"+lotID+"/itps", map[string]interface{}{
		"template_name": "Concrete pour",
		"items": []map[string]interface{}{
			{"description": "Formwork checked"},
			{"description": "Reinforcement inspected", "point_type": "hold"},
		},
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	items := testutil.Data(w)["items"].([]interface{})
	require.Len(t, items, 2)
	formwork := items[0].(map[string]interface{})
	reo := items[1].(map[string]interface{})
	assert.Equal(t, "standard", formwork["point_type"])
	assert.Equal(t, float64(2), reo["sequence"])

	// assignment creates the pending hold point
	w = testutil.DoRequest(r, "GET", "/api/v1/holdpoints/project/p1?lot_id="+lotID, nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code)
	list := testutil.Data(w)
	require.Equal(t, float64(1), list["total"])
	hp := list["items"].([]interface{})[0].(map[string]interface{})
	assert.NotEmpty(t, hp["id"])
	assert.Equal(t, reo["id"], hp["item_id"])
	assert.Equal(t, "pending", hp["status"])

	w = testutil.DoRequest(r, "POST", "/api/v1/lots/"+lotID+"/items/"+reo["id"].(string)+"/complete", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, engine.CodeHoldPointNotReleased, testutil.Data(w)["code"])

	w = testutil.DoRequest(r, "POST", "/api/v1/lots/"+lotID+"/items/"+formwork["id"].(string)+"/complete", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, testutil.Data(w)["is_completed"])

	w = testutil.DoRequest(r, "POST", "/api/v1/lots/"+lotID+"/items/"+formwork["id"].(string)+"/complete", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, engine.CodeInvalidTransition, testutil.Data(w)["code"])

	w = testutil.DoRequest(r, "POST", "/api/v1/lots/"+lotID+"/tests", map[string]interface{}{
		"test_type": "Slump",
		"reference": "LAB-778",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "pending", testutil.Data(w)["result"])

	w = testutil.DoRequest(r, "POST", "/api/v1/lots/"+lotID+"/photos", map[string]interface{}{
		"url":     "https://photos.example.com/pier3.jpg",
		"caption": "Reo before pour",
	}, testutil.EngineerToken())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = testutil.DoRequest(r, "GET", "/api/v1/lots/"+lotID, nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code)
	detail := testutil.Data(w)
	assert.Equal(t, "LOT-100", detail["lot_number"])
	itps := detail["itps"].([]interface{})
	require.Len(t, itps, 1)
	assert.Len(t, itps[0].(map[string]interface{})["items"], 2)

	w = testutil.DoRequest(r, "GET", "/api/v1/projects/p1/lots", nil, testutil.EngineerToken())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), testutil.Data(w)["total"])
}
