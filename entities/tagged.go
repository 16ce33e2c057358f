package entities

import (
	"github.com/relloyd/stagesync/components"
	td "github.com/relloyd/stagesync/table-definition"
)

// Tag columns are <Category>_<Tag> with non-alphanumerics removed.

var staffTagColumns = []string{
	"CALevel_CA1", "CALevel_CA2", "CALevel_CA3", "CALevel_Intern", "CALevel_PGY4", "CALevel_PGY5", "CALevel_PGY6",
	"Capacity_Cardiothoracic",
	"CRNAType_FT", "CRNAType_PRN",
	"CUH_CUH10hr", "CUH_CUH13hr",
	"Division_Cardiothoracic", "Division_CriticalCare", "Division_CUHGeneralALL", "Division_CUHGeneralPrimary",
	"Division_CUHOB", "Division_Liver", "Division_Neuro", "Division_OSCPrimary", "Division_Pain",
	"Division_Pediatrics", "Division_PHHSGeneral", "Division_PHHSOBHybrid", "Division_PHHSOBCUHCore",
	"Division_PHHSOBPrimary", "Division_PHHSRegional", "Division_UHRegional", "Division_ZaleCall",
	"EmployeeType_APP", "EmployeeType_FacultyFullTime", "EmployeeType_FacultyPartTime", "EmployeeType_FacultyPTNB",
	"EmployeeType_FacultyTasks", "EmployeeType_NonClinicalTime", "EmployeeType_Trainee", "EmployeeType_UTStaff",
	"Integrations_Kronos",
	"Location_CUH", "Location_CUHCardiac", "Location_CUHGeneral", "Location_CUHNeuro", "Location_FellowVacation",
	"Location_ICU", "Location_PainRoles", "Location_PHHS", "Location_UH", "Location_UHOSC", "Location_VA", "Location_Zale",
	"MDSimulation_SIM",
	"ND_DAY", "ND_Night",
	"PrimarySite_PHHS", "PrimarySite_UH",
	"ProviderType_CRNA", "ProviderType_Fellow", "ProviderType_NP", "ProviderType_PA", "ProviderType_Physician",
	"ProviderType_Resident", "ProviderType_RRNA", "ProviderType_UTStaff",
	"QGendaAdminTags_Header", "QGendaAdminTags_LBL",
	"StaffPrimaryLocation_CUH", "StaffPrimaryLocation_Zale",
	"TTCMMockPunch_MDs",
}

var taskTagColumns = []string{
	"CALevel_CA1", "CALevel_CA2", "CALevel_CA3", "CALevel_Intern", "CALevel_PGY4", "CALevel_PGY5", "CALevel_PGY6",
	"Capacity_Cardiothoracic",
	"CRNAType_FT", "CRNAType_PRN",
	"CUH_CUH10hr", "CUH_CUH13hr",
	"Division_Cardiothoracic", "Division_CriticalCare", "Division_CUHGeneralALL", "Division_CUHGeneralPrimary",
	"Division_CUHOB", "Division_Liver", "Division_Neuro", "Division_OSCPrimary", "Division_Pain",
	"Division_Pediatrics", "Division_PHHSGeneral", "Division_PHHSOBHybrid", "Division_PHHSOBCUHCore",
	"Division_PHHSOBPrimary", "Division_PHHSRegional", "Division_UHRegional", "Division_ZaleCall",
	"EmployeeType_APP", "EmployeeType_FacultyFullTime", "EmployeeType_FacultyPartTime", "EmployeeType_FacultyPTNB",
	"EmployeeType_FacultyTasks", "EmployeeType_NonClinicalTime", "EmployeeType_Trainee", "EmployeeType_UTStaff",
	"Integrations_Kronos",
	"Location_CUH", "Location_CUHCardiac", "Location_CUHGeneral", "Location_CUHNeuro", "Location_FellowVacation",
	"Location_ICU", "Location_PainRoles", "Location_PHHS", "Location_UH", "Location_UHOSC", "Location_VA", "Location_Zale",
	"MDSimulation_SIM",
	"ND_Day", "ND_Night",
	"PrimarySite_PHHS", "PrimarySite_UH",
	"ProviderType_CRNA", "ProviderType_Fellow", "ProviderType_NP", "ProviderType_PA", "ProviderType_Physician",
	"ProviderType_Resident", "ProviderType_RRNA", "ProviderType_UTStaff",
	"QGendaAdminTags_Header", "QGendaAdminTags_LBL",
	"ShiftLength_8hr", "ShiftLength_10hr", "ShiftLength_11hr", "ShiftLength_12hr",
	"StaffPrimaryLocation_CUH", "StaffPrimaryLocation_Zale",
	"TTCMMockPunch_MDs",
}

func taggedDescriptor(key string, columns []string) td.Descriptor {
	fields := []td.Field{f(key, td.FieldString), f("InvalidRecordFlag", td.FieldFlag)}
	for _, col := range columns {
		fields = append(fields, f(col, td.FieldFlag))
	}
	return td.NewDescriptor(fields...)
}

func TaggedStaff() *Entity {
	e := &Entity{
		Name: "TaggedStaff",
		Source: Source{
			Kind:     SourceQGenda,
			Path:     "/staffmember",
			Select:   []string{"StaffKey", "Tags"},
			OrderBy:  []string{"StaffKey"},
			Includes: "Tags",
		},
		Descriptor:   taggedDescriptor("StaffKey", staffTagColumns),
		Keys:         []string{"StaffKey"},
		Scope:        components.ScopeAll,
		DeletePolicy: components.DeletePolicyRetain,
		Transforms:   []components.Transform{components.TagPivot{Columns: staffTagColumns}},
	}
	e.ImportTable, e.StageTable, e.ProductionTable = tables("import.qdm_TaggedStaff", "stage.qdm_TaggedStaff", "dim.TaggedStaff")
	return e
}

func TaggedTask() *Entity {
	e := &Entity{
		Name: "TaggedTask",
		Source: Source{
			Kind:     SourceQGenda,
			Path:     "/task/",
			Select:   []string{"TaskKey", "Tags"},
			OrderBy:  []string{"TaskKey"},
			Includes: "Tags",
		},
		Descriptor:   taggedDescriptor("TaskKey", taskTagColumns),
		Keys:         []string{"TaskKey"},
		Scope:        components.ScopeAll,
		DeletePolicy: components.DeletePolicyRetain,
		Transforms:   []components.Transform{components.TagPivot{Columns: taskTagColumns}},
	}
	e.ImportTable, e.StageTable, e.ProductionTable = tables("import.qdm_TaggedTask", "stage.qdm_TaggedTask", "dim.TaggedTask")
	return e
}
