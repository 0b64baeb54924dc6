// pkg/registry/catalog.go
package registry

// Task types served by the worker manager.
const (
	TaskSubmitApplication         = "submit-application"
	TaskAdminApproveApplication   = "admin-approve-application"
	TaskAdminRejectApplication    = "admin-reject-application"
	TaskCastVote                  = "cast-vote"
	TaskGetVoteTally              = "get-vote-tally"
	TaskCheckAndReserveAllocation = "check-and-reserve-allocation"
	TaskFinalizeAllocation        = "finalize-allocation"
	TaskSettleAllocation          = "settle-allocation"
	TaskLockExchangeRate          = "lock-exchange-rate"
	TaskCalculateConversion       = "calculate-conversion"
	TaskConsumeRateLock           = "consume-rate-lock"
)

func idField() map[string]interface{} {
	return map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 128}
}

// amountField accepts a decimal either as a JSON number or as a string.
func amountField() map[string]interface{} {
	return map[string]interface{}{
		"oneOf": []interface{}{
			map[string]interface{}{"type": "number", "minimum": 0},
			map[string]interface{}{"type": "string", "pattern": `^[0-9]+(\.[0-9]+)?$`},
		},
	}
}

func objectSchema(required []string, properties map[string]interface{}) map[string]interface{} {
	req := make([]interface{}, len(required))
	for i, r := range required {
		req[i] = r
	}
	return map[string]interface{}{
		"type":       "object",
		"required":   req,
		"properties": properties,
	}
}

func enumField(values ...string) map[string]interface{} {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return map[string]interface{}{"type": "string", "enum": enum}
}

var txTypes = []string{"trust_contribution", "investment", "cmms_payment"}

// Catalog returns the built-in activity definitions.
func Catalog() *ActivityRegistry {
	return &ActivityRegistry{
		Version:     "1.0.0",
		LastUpdated: "2026-10-01T00:00:00Z",
		Activities: []Activity{
			{
				ID:                   TaskSubmitApplication,
				DisplayName:          "Submit Membership Application",
				Description:          "Records a pending application to join a trust group and notifies its admins",
				Category:             CategoryGovernance,
				Version:              "1.0.0",
				TaskType:             TaskSubmitApplication,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"groupId", "applicantId", "applicationText"}, map[string]interface{}{
					"groupId":         idField(),
					"applicantId":     idField(),
					"applicationText": map[string]interface{}{"type": "string"},
				}),
				OutputSchema: objectSchema([]string{"applicationId", "applicationStatus"}, map[string]interface{}{
					"applicationId":     idField(),
					"applicationStatus": map[string]interface{}{"type": "string"},
				}),
				ErrorCodes: []string{"VALIDATION_ERROR", "STATE_ERROR", "DATABASE_ERROR"},
				Timeout:    "10s",
				Retries:    3,
				Processes:  []string{"membership-onboarding"},
				Tags:       []string{"membership"},
			},
			{
				ID:                   TaskAdminApproveApplication,
				DisplayName:          "Admin Approve Application",
				Description:          "Moves a pending application into member voting",
				Category:             CategoryGovernance,
				Version:              "1.0.0",
				TaskType:             TaskAdminApproveApplication,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"applicationId", "adminId"}, map[string]interface{}{
					"applicationId": idField(),
					"adminId":       idField(),
				}),
				OutputSchema: objectSchema([]string{"applicationStatus"}, map[string]interface{}{
					"applicationStatus": map[string]interface{}{"type": "string"},
				}),
				ErrorCodes: []string{"VALIDATION_ERROR", "NOT_FOUND", "FORBIDDEN", "STATE_ERROR", "CONCURRENCY_CONFLICT"},
				Timeout:    "10s",
				Retries:    3,
				Processes:  []string{"membership-onboarding"},
				Tags:       []string{"membership", "admin"},
			},
			{
				ID:                   TaskAdminRejectApplication,
				DisplayName:          "Admin Reject Application",
				Description:          "Rejects a pending application before voting",
				Category:             CategoryGovernance,
				Version:              "1.0.0",
				TaskType:             TaskAdminRejectApplication,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"applicationId", "adminId"}, map[string]interface{}{
					"applicationId": idField(),
					"adminId":       idField(),
				}),
				OutputSchema: objectSchema([]string{"applicationStatus"}, map[string]interface{}{
					"applicationStatus": map[string]interface{}{"type": "string"},
				}),
				ErrorCodes: []string{"VALIDATION_ERROR", "NOT_FOUND", "FORBIDDEN", "STATE_ERROR", "CONCURRENCY_CONFLICT"},
				Timeout:    "10s",
				Retries:    3,
				Processes:  []string{"membership-onboarding"},
				Tags:       []string{"membership", "admin"},
			},
			{
				ID:                   TaskCastVote,
				DisplayName:          "Cast Membership Vote",
				Description:          "Records a member's vote and resolves the application once the threshold is decided",
				Category:             CategoryGovernance,
				Version:              "1.0.0",
				TaskType:             TaskCastVote,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"applicationId", "voterId", "vote"}, map[string]interface{}{
					"applicationId": idField(),
					"voterId":       idField(),
					"vote":          map[string]interface{}{"type": "string", "pattern": "^(?i)(yes|no)$"},
				}),
				OutputSchema: objectSchema([]string{"voteAccepted", "thresholdReached"}, map[string]interface{}{
					"voteAccepted":     map[string]interface{}{"type": "boolean"},
					"thresholdReached": map[string]interface{}{"type": "boolean"},
				}),
				ErrorCodes: []string{"VALIDATION_ERROR", "NOT_FOUND", "FORBIDDEN", "STATE_ERROR", "DUPLICATE_VOTE"},
				Timeout:    "10s",
				Retries:    5,
				Processes:  []string{"membership-onboarding"},
				Tags:       []string{"membership", "voting"},
			},
			{
				ID:                   TaskGetVoteTally,
				DisplayName:          "Get Vote Tally",
				Description:          "Reads the current tally of an application",
				Category:             CategoryGovernance,
				Version:              "1.0.0",
				TaskType:             TaskGetVoteTally,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"applicationId"}, map[string]interface{}{
					"applicationId": idField(),
				}),
				OutputSchema: objectSchema([]string{"tally"}, map[string]interface{}{
					"tally": map[string]interface{}{"type": "object"},
				}),
				ErrorCodes: []string{"VALIDATION_ERROR", "NOT_FOUND"},
				Timeout:    "5s",
				Retries:    3,
				Processes:  []string{"membership-onboarding"},
				Tags:       []string{"membership", "voting"},
			},
			{
				ID:                   TaskCheckAndReserveAllocation,
				DisplayName:          "Check And Reserve Allocation",
				Description:          "Enforces the per-investor cap and reserves the allocation when it fits",
				Category:             CategoryInvestment,
				Version:              "1.0.0",
				TaskType:             TaskCheckAndReserveAllocation,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"investorId", "businessId", "pitchId", "icanAmount"}, map[string]interface{}{
					"investorId": idField(),
					"businessId": idField(),
					"pitchId":    idField(),
					"icanAmount": amountField(),
				}),
				OutputSchema: objectSchema([]string{"allowed", "capDetails"}, map[string]interface{}{
					"allowed":      map[string]interface{}{"type": "boolean"},
					"allocationId": map[string]interface{}{"type": "string"},
					"capDetails":   map[string]interface{}{"type": "object"},
				}),
				ErrorCodes: []string{"VALIDATION_ERROR", "NOT_FOUND", "CONCURRENCY_CONFLICT", "DATABASE_ERROR"},
				Timeout:    "10s",
				Retries:    5,
				Processes:  []string{"investment-pitch"},
				Tags:       []string{"allocation", "cap"},
			},
			{
				ID:                   TaskFinalizeAllocation,
				DisplayName:          "Finalize Allocation",
				Description:          "Locks a rate, converts the reserved ICAN into local currency and attaches the breakdown",
				Category:             CategoryInvestment,
				Version:              "1.0.0",
				TaskType:             TaskFinalizeAllocation,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"allocationId", "countryCode"}, map[string]interface{}{
					"allocationId": idField(),
					"countryCode":  map[string]interface{}{"type": "string", "pattern": "^[A-Za-z]{2}$"},
				}),
				OutputSchema: objectSchema([]string{"allocation"}, map[string]interface{}{
					"allocation": map[string]interface{}{"type": "object"},
				}),
				ErrorCodes: []string{"VALIDATION_ERROR", "NOT_FOUND", "STATE_ERROR", "UPSTREAM_UNAVAILABLE", "RATE_LOCK_EXPIRED"},
				Timeout:    "15s",
				Retries:    3,
				Processes:  []string{"investment-pitch"},
				Tags:       []string{"allocation", "exchange"},
			},
			{
				ID:                   TaskSettleAllocation,
				DisplayName:          "Settle Allocation",
				Description:          "Completes or voids a reserved allocation",
				Category:             CategoryInvestment,
				Version:              "1.0.0",
				TaskType:             TaskSettleAllocation,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"allocationId", "outcome"}, map[string]interface{}{
					"allocationId": idField(),
					"outcome":      enumField("completed", "void"),
				}),
				OutputSchema: objectSchema([]string{"allocationStatus"}, map[string]interface{}{
					"allocationStatus": map[string]interface{}{"type": "string"},
				}),
				ErrorCodes: []string{"VALIDATION_ERROR", "NOT_FOUND", "STATE_ERROR"},
				Timeout:    "10s",
				Retries:    3,
				Processes:  []string{"investment-pitch"},
				Tags:       []string{"allocation"},
			},
			{
				ID:                   TaskLockExchangeRate,
				DisplayName:          "Lock Exchange Rate",
				Description:          "Pins the oracle rate for a transaction for the lock TTL",
				Category:             CategoryExchange,
				Version:              "1.0.0",
				TaskType:             TaskLockExchangeRate,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"fromCurrency", "toCurrency", "txId", "txType"}, map[string]interface{}{
					"fromCurrency": map[string]interface{}{"type": "string", "minLength": 2, "maxLength": 10},
					"toCurrency":   map[string]interface{}{"type": "string", "minLength": 2, "maxLength": 10},
					"txId":         idField(),
					"txType":       enumField(txTypes...),
				}),
				OutputSchema: objectSchema([]string{"rateLock"}, map[string]interface{}{
					"rateLock": map[string]interface{}{"type": "object"},
				}),
				ErrorCodes: []string{"VALIDATION_ERROR", "UPSTREAM_UNAVAILABLE", "CONCURRENCY_CONFLICT"},
				Timeout:    "10s",
				Retries:    3,
				Processes:  []string{"investment-pitch", "trust-contribution"},
				Tags:       []string{"exchange", "oracle"},
			},
			{
				ID:                   TaskCalculateConversion,
				DisplayName:          "Calculate Conversion",
				Description:          "Computes gross, fees and net amounts for an ICAN amount at a locked rate",
				Category:             CategoryExchange,
				Version:              "1.0.0",
				TaskType:             TaskCalculateConversion,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"icanAmount", "lockedRate", "countryCode", "txType"}, map[string]interface{}{
					"icanAmount":  amountField(),
					"lockedRate":  amountField(),
					"countryCode": map[string]interface{}{"type": "string", "pattern": "^[A-Za-z]{2}$"},
					"txType":      enumField(txTypes...),
				}),
				OutputSchema: objectSchema([]string{"conversion"}, map[string]interface{}{
					"conversion": map[string]interface{}{"type": "object"},
				}),
				ErrorCodes: []string{"VALIDATION_ERROR"},
				Timeout:    "5s",
				Retries:    0,
				Processes:  []string{"investment-pitch", "trust-contribution"},
				Tags:       []string{"exchange", "fees"},
			},
			{
				ID:                   TaskConsumeRateLock,
				DisplayName:          "Consume Rate Lock",
				Description:          "Marks an active, unexpired rate lock as consumed",
				Category:             CategoryExchange,
				Version:              "1.0.0",
				TaskType:             TaskConsumeRateLock,
				ImplementationStatus: "completed",
				InputSchema: objectSchema([]string{"rateLockId"}, map[string]interface{}{
					"rateLockId": idField(),
				}),
				OutputSchema: objectSchema([]string{"rateLock"}, map[string]interface{}{
					"rateLock": map[string]interface{}{"type": "object"},
				}),
				ErrorCodes: []string{"VALIDATION_ERROR", "NOT_FOUND", "STATE_ERROR", "RATE_LOCK_EXPIRED"},
				Timeout:    "5s",
				Retries:    3,
				Processes:  []string{"investment-pitch", "trust-contribution"},
				Tags:       []string{"exchange"},
			},
		},
	}
}
