package Models

import "fmt"

type Company struct {
	Base
	Sequence int64   `json:"sequence" gorm:"not null;uniqueIndex"`
	Code     string  `json:"code" gorm:"type:varchar(32);not null;uniqueIndex"`
	Name     string  `json:"name" gorm:"not null"`
	Image    *string `json:"image"`
}

// CompanyCode renders the join code handed to employees, e.g. COMP-07.
func CompanyCode(sequence int64) string {
	return fmt.Sprintf("COMP-%02d", sequence)
}
