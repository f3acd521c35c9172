package Models

type Project struct {
	Base
	Name        string          `json:"name" gorm:"not null"`
	Description *string         `json:"description"`
	CompanyID   string          `json:"companyId" gorm:"type:varchar(36);not null;index"`
	Members     []ProjectMember `json:"members,omitempty" gorm:"foreignKey:ProjectID"`
}

type ProjectMember struct {
	Base
	UserID    string   `json:"userId" gorm:"type:varchar(36);not null;uniqueIndex:idx_project_member"`
	ProjectID string   `json:"projectId" gorm:"type:varchar(36);not null;uniqueIndex:idx_project_member"`
	User      *User    `json:"user,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Project   *Project `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

// ProjectRef and UserRef are the small projections embedded in task
// listings and carry-forward summaries.
type ProjectRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CompanyID string `json:"companyId,omitempty"`
}

type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

func (p *Project) Ref() *ProjectRef {
	if p == nil {
		return nil
	}
	return &ProjectRef{ID: p.ID, Name: p.Name, CompanyID: p.CompanyID}
}

func (u *User) Ref() *UserRef {
	if u == nil {
		return nil
	}
	return &UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}
