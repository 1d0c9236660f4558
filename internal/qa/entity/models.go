package entity

// Models every QA table, in migration order
func Models() []interface{} {
	return []interface{}{
		&Project{},
		&ProjectMember{},
		&Lot{},
		&ITPInstance{},
		&ITPChecklistItem{},
		&TestResult{},
		&LotPhoto{},
		&HoldPoint{},
		&NCR{},
		&NCRLot{},
		&NCREvidence{},
		&Claim{},
		&ClaimedLot{},
		&ActivityLog{},
	}
}
