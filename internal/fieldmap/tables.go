package fieldmap

import "github.com/joseph-ayodele/citizen-docs/constants"

// Kind tells the submitter how to normalize a value.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindGender
)

// Entry is one row of a mapping table: the OCR machine key, the label shown
// to the user and the key the save endpoint expects.
type Entry struct {
	Key        string
	Label      string
	PayloadKey string
	Kind       Kind
}

// Display labels shared across document types.
const (
	LabelFullName    = "Họ và tên"
	LabelDateOfBirth = "Ngày sinh"
	LabelGender      = "Giới tính"
	LabelNationality = "Quốc tịch"
	LabelExpireDate  = "Có giá trị đến"
)

var cccdEntries = []Entry{
	{Key: "id", Label: "Số CCCD", PayloadKey: "so_cccd"},
	{Key: "name", Label: LabelFullName, PayloadKey: "name"},
	{Key: "dob", Label: LabelDateOfBirth, PayloadKey: "date_of_birth", Kind: KindDate},
	{Key: "gender", Label: LabelGender, PayloadKey: "gender", Kind: KindGender},
	{Key: "nationality", Label: LabelNationality, PayloadKey: "nationality"},
	{Key: "origin_place", Label: "Quê quán", PayloadKey: "origin_place"},
	{Key: "current_place", Label: "Nơi thường trú", PayloadKey: "current_place"},
	{Key: "expire_date", Label: LabelExpireDate, PayloadKey: "expire_date", Kind: KindDate},
	{Key: "issue_date", Label: "Ngày cấp", PayloadKey: "issue_date", Kind: KindDate},
	{Key: "features", Label: "Đặc điểm nhận dạng", PayloadKey: "features"},
}

var bhytEntries = []Entry{
	{Key: "id", Label: "Số thẻ BHYT", PayloadKey: "so_bhyt"},
	{Key: "name", Label: LabelFullName, PayloadKey: "name"},
	{Key: "dob", Label: LabelDateOfBirth, PayloadKey: "date_of_birth", Kind: KindDate},
	{Key: "gender", Label: LabelGender, PayloadKey: "gender", Kind: KindGender},
	{Key: "hospital_code", Label: "Mã nơi đăng ký KCB", PayloadKey: "hospital_code"},
	{Key: "insurance_area", Label: "Khu vực bảo hiểm", PayloadKey: "insurance_area"},
	{Key: "issue_date", Label: "Có giá trị từ", PayloadKey: "issue_date", Kind: KindDate},
	{Key: "expire_date", Label: LabelExpireDate, PayloadKey: "expire_date", Kind: KindDate},
}

var gplxEntries = []Entry{
	{Key: "id", Label: "Số GPLX", PayloadKey: "so_gplx"},
	{Key: "name", Label: LabelFullName, PayloadKey: "name"},
	{Key: "dob", Label: LabelDateOfBirth, PayloadKey: "date_of_birth", Kind: KindDate},
	{Key: "nationality", Label: LabelNationality, PayloadKey: "nationality"},
	{Key: "current_place", Label: "Nơi cư trú", PayloadKey: "current_place"},
	{Key: "class", Label: "Hạng GPLX", PayloadKey: "hang_gplx"},
	{Key: "issue_place", Label: "Nơi cấp", PayloadKey: "noi_cap"},
	{Key: "issue_date", Label: "Ngày cấp", PayloadKey: "issue_date", Kind: KindDate},
	{Key: "expire_date", Label: "Ngày hết hạn", PayloadKey: "expire_date", Kind: KindDate},
}

var tables = map[constants.DocType]*Table{
	constants.DocTypeCCCD: newTable(constants.DocTypeCCCD, cccdEntries),
	constants.DocTypeBHYT: newTable(constants.DocTypeBHYT, bhytEntries),
	constants.DocTypeGPLX: newTable(constants.DocTypeGPLX, gplxEntries),
}
