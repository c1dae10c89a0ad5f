package model

import "time"

// Collection はPRMの管理対象コレクション名。
type Collection string

const (
	CollectionPartners           Collection = "partners"
	CollectionVendors            Collection = "vendors"
	CollectionProducts           Collection = "products"
	CollectionDeals              Collection = "deals"
	CollectionMarketingCampaigns Collection = "marketing_campaigns"
	CollectionTrainingPrograms   Collection = "training_programs"
	CollectionNotifications      Collection = "notifications"
)

// collectionStatuses はコレクションごとに許可されるステータス。
// 先頭の値が未指定時の既定値になる。
var collectionStatuses = map[Collection][]string{
	CollectionPartners:           {"Active", "Inactive", "Pending"},
	CollectionVendors:            {"Active", "Inactive", "Under Review"},
	CollectionProducts:           {"Available", "Limited", "Out of Stock", "Discontinued"},
	CollectionDeals:              {"Prospecting", "Qualified", "Proposal", "Negotiation", "Closed Won", "Closed Lost"},
	CollectionMarketingCampaigns: {"Planned", "Active", "Completed", "Cancelled"},
	CollectionTrainingPrograms:   {"Upcoming", "Active", "Completed"},
	CollectionNotifications:      {"unread", "read"},
}

// Valid はコレクション名が定義済みかどうかを返す。
func (c Collection) Valid() bool {
	_, ok := collectionStatuses[c]
	return ok
}

// Statuses はコレクションで許可されるステータスの一覧を返す。
func (c Collection) Statuses() []string {
	return append([]string(nil), collectionStatuses[c]...)
}

// DefaultStatus はステータス未指定時の既定値を返す。
func (c Collection) DefaultStatus() string {
	s := collectionStatuses[c]
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// AllowsStatus はステータスがコレクションで許可されているかを返す。
func (c Collection) AllowsStatus(status string) bool {
	for _, s := range collectionStatuses[c] {
		if s == status {
			return true
		}
	}
	return false
}

// Collections は定義済みのコレクションを固定順で返す。
func Collections() []Collection {
	return []Collection{
		CollectionPartners,
		CollectionVendors,
		CollectionProducts,
		CollectionDeals,
		CollectionMarketingCampaigns,
		CollectionTrainingPrograms,
		CollectionNotifications,
	}
}

// Record はコレクションの1行を表す。
// コレクション固有の項目はDataにJSONとして保持する。
type Record struct {
	ID         string         `json:"id"`
	Collection Collection     `json:"collection"`
	OwnerID    string         `json:"owner_id"`
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data"`
	Active     bool           `json:"active"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
