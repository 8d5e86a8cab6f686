package models

type AdminStats struct {
	Users           int                        `json:"users"`
	MUNs            map[MUNStatus]int          `json:"muns"`
	Registrations   map[RegistrationStatus]int `json:"registrations"`
	CheckedIn       int                        `json:"checked_in"`
	ConfirmedIncome float64                    `json:"confirmed_income"`
	Posts           int                        `json:"posts"`
	Comments        int                        `json:"comments"`
}

type RoleRequest struct {
	Role Role `json:"role" validate:"required,oneof=user admin"`
}

// DailyRegistrations is one day of a MUN's registration activity.
type DailyRegistrations struct {
	Day           string  `bun:"day" json:"day"`
	Registrations int     `bun:"registrations" json:"registrations"`
	Confirmed     int     `bun:"confirmed" json:"confirmed"`
	Revenue       float64 `bun:"revenue" json:"revenue"`
}

type MUNAnalytics struct {
	MUNID string               `json:"mun_id"`
	Daily []DailyRegistrations `json:"daily"`
	Stats MUNStats             `json:"stats"`
}
