package entities

import (
	"github.com/relloyd/stagesync/components"
	c "github.com/relloyd/stagesync/constants"
	td "github.com/relloyd/stagesync/table-definition"
)

// Default returns the catalog in run order.
func Default() Catalog {
	return Catalog{
		Schedule(),
		TimeEvent(),
		StaffMember(),
		Tag(),
		Task(),
		TaggedStaff(),
		TaggedTask(),
		ProviderCaseLog(),
	}
}

func Schedule() *Entity {
	d := td.NewDescriptor(
		f("ScheduleKey", td.FieldString),
		f("TaskShiftKey", td.FieldString),
		f("StaffKey", td.FieldString),
		f("TaskKey", td.FieldString),
		fs("ScheduleDate", td.FieldDate, "Date"),
		f("StartDate", td.FieldDate),
		f("StartTime", td.FieldTime),
		f("EndDate", td.FieldDate),
		f("EndTime", td.FieldTime),
		f("TaskName", td.FieldString),
		f("StaffFName", td.FieldString),
		f("StaffLName", td.FieldString),
		f("Credit", td.FieldDecimal),
		f("TaskIsPrintStart", td.FieldFlag),
		f("TaskIsPrintEnd", td.FieldFlag),
		f("IsCred", td.FieldFlag),
		f("IsLocked", td.FieldFlag),
		f("IsPublished", td.FieldFlag),
		f("IsStruck", td.FieldFlag),
		f("Notes", td.FieldString),
	)
	e := &Entity{
		Name: "Schedule",
		Source: Source{
			Kind:       SourceQGenda,
			Path:       "/schedule",
			Select:     sourceNames(d),
			OrderBy:    []string{"Date"},
			DateFormat: c.DateFormat,
		},
		Descriptor:  d,
		Keys:        []string{"ScheduleKey"},
		Tracked:     []string{"StartTime", "EndTime", "Notes"},
		Scope:       components.ScopeWindow,
		WindowField: "ScheduleDate",
		FilterRule:  components.StruckRowsRule,
		DaysBack:    c.QGendaDaysBackDefault,
		DaysForward: c.QGendaDaysForwardDefault,
	}
	e.ImportTable, e.StageTable, e.ProductionTable = tables("import.qdm_Schedule", "stage.qdm_Schedule", "dbo.Schedule")
	return e
}

func TimeEvent() *Entity {
	d := td.NewDescriptor(
		f("ScheduleEntryKey", td.FieldString),
		f("TaskShiftKey", td.FieldString),
		f("StaffKey", td.FieldString),
		f("TaskKey", td.FieldString),
		f("TimePunchEventKey", td.FieldString),
		fs("TimeEventDate", td.FieldDate, "Date"),
		fs("TimeEventWeekday", td.FieldString, "DayOfWeek"),
		fs("ActualClockIn", td.FieldDateTime, "ActualClockInLocal"),
		fs("EffectiveClockIn", td.FieldDateTime, "EffectiveClockInLocal"),
		fs("ActualClockOut", td.FieldDateTime, "ActualClockOutLocal"),
		fs("EffectiveClockOut", td.FieldDateTime, "EffectiveClockOutLocal"),
		f("Duration", td.FieldDecimal),
		f("IsStruck", td.FieldFlag),
		f("IsEarly", td.FieldFlag),
		f("IsLate", td.FieldFlag),
		f("IsExcessiveDuration", td.FieldFlag),
		f("IsExtended", td.FieldFlag),
		f("IsUnplanned", td.FieldFlag),
		f("FlagsResolved", td.FieldFlag),
		f("Notes", td.FieldString),
		f("LastModifiedDate", td.FieldDateTime),
	)
	e := &Entity{
		Name: "TimeEvent",
		Source: Source{
			Kind:       SourceQGenda,
			Path:       "/timeevent/",
			Select:     sourceNames(d),
			OrderBy:    []string{"Date"},
			DateFormat: c.DateFormatUS,
		},
		Descriptor:  d,
		Keys:        []string{"TimePunchEventKey"},
		Tracked:     []string{"Notes", "LastModifiedDate"},
		OrderKey:    "LastModifiedDate",
		Scope:       components.ScopeWindow,
		WindowField: "TimeEventDate",
		FilterRule:  components.StruckRowsRule,
		DaysBack:    c.QGendaDaysBackDefault,
		DaysForward: c.QGendaDaysForwardDefault,
	}
	e.ImportTable, e.StageTable, e.ProductionTable = tables("import.qdm_TimeEvent", "stage.qdm_TimeEvent", "dbo.TimeEvent")
	return e
}

func StaffMember() *Entity {
	d := td.NewDescriptor(
		f("StaffKey", td.FieldString),
		f("StaffId", td.FieldString),
		fs("StaffAbbrev", td.FieldString, "Abbrev"),
		f("StaffTypeKey", td.FieldString),
		f("UserProfileKey", td.FieldString),
		f("PayrollId", td.FieldString),
		f("EmrId", td.FieldString),
		f("Npi", td.FieldString),
		f("FirstName", td.FieldString),
		f("LastName", td.FieldString),
		f("StartDate", td.FieldDate),
		f("EndDate", td.FieldDate),
		f("MobilePhone", td.FieldString),
		f("Pager", td.FieldString),
		f("Email", td.FieldString),
		f("IsActive", td.FieldFlag),
		f("DeactivationDate", td.FieldDate),
		fs("UserLastLoginDateTimeUTC", td.FieldDateTime, "UserLastLoginDateTimeUtc"),
		f("SourceOfLogin", td.FieldString),
	)
	e := &Entity{
		Name: "StaffMember",
		Source: Source{
			Kind:    SourceQGenda,
			Path:    "/staffmember",
			Select:  append(sourceNames(d, "IsActive", "DeactivationDate"), "DeactivationDateUtc"),
			OrderBy: []string{"LastName", "FirstName"},
		},
		Descriptor:   d,
		Keys:         []string{"StaffKey"},
		Tracked:      []string{"UserLastLoginDateTimeUTC", "SourceOfLogin", "IsActive", "DeactivationDate"},
		OrderKey:     "UserLastLoginDateTimeUTC",
		Scope:        components.ScopeAll,
		DeletePolicy: components.DeletePolicyRetain,
		Transforms:   []components.Transform{components.StaffActivity{}},
	}
	e.ImportTable, e.StageTable, e.ProductionTable = tables("import.qdm_StaffMember", "stage.qdm_StaffMember", "dim.StaffMember")
	return e
}

func Task() *Entity {
	d := td.NewDescriptor(
		f("TaskKey", td.FieldString),
		fs("TaskName", td.FieldString, "Name"),
		f("TaskId", td.FieldString),
		fs("TaskAbbrev", td.FieldString, "Abbrev"),
		fs("TaskType", td.FieldString, "Type"),
		f("DepartmentId", td.FieldString),
		f("EmrId", td.FieldString),
		f("StartDate", td.FieldDate),
		f("EndDate", td.FieldDate),
		f("ContactInformation", td.FieldString),
		fs("IsManual", td.FieldFlag, "Manual"),
		f("RequireTimePunch", td.FieldFlag),
		f("Notes", td.FieldString),
	)
	e := &Entity{
		Name: "Task",
		Source: Source{
			Kind:    SourceQGenda,
			Path:    "/task",
			Select:  sourceNames(d),
			OrderBy: []string{"Name"},
		},
		Descriptor:        d,
		Keys:              []string{"TaskKey"},
		Scope:             components.ScopeAll,
		DeletePolicy:      components.DeletePolicyRetain,
		RequireRows:       true,
		RequireMirrorRows: true,
	}
	e.ImportTable, e.StageTable, e.ProductionTable = tables("import.qdm_Task", "stage.qdm_Task", "dim.Task")
	return e
}

// Tag is read from the warehouse view that holds the QGenda tag categories.
// Flag columns arrive as 'True'/'False' and are coerced by their field type.
func Tag() *Entity {
	fields := []td.Field{
		f("CategoryKey", td.FieldBigInt),
		f("CategoryName", td.FieldString),
		f("CategoryCreatedDateTime", td.FieldDateTime),
		f("CategoryModifiedDateTime", td.FieldDateTime),
		f("TagKey", td.FieldBigInt),
		f("TagName", td.FieldString),
		f("TagCreatedDateTime", td.FieldDateTime),
		f("TagModifiedDateTime", td.FieldDateTime),
	}
	for _, n := range tagFlagColumns {
		fields = append(fields, f(n, td.FieldFlag))
	}
	e := &Entity{
		Name: "Tag",
		Source: Source{
			Kind:       SourceSql,
			Connection: c.ConnectionNameEdw,
			Sqltext:    tagSql,
		},
		Descriptor:   td.NewDescriptor(fields...),
		Keys:         []string{"CategoryKey", "TagKey"},
		OrderKey:     "TagModifiedDateTime",
		Scope:        components.ScopeAll,
		DeletePolicy: components.DeletePolicyRetain,
		RequireRows:  true,
	}
	e.ImportTable, e.StageTable, e.ProductionTable = tables("import.qdm_Tag", "stage.qdm_Tag", "dim.Tag")
	return e
}

var tagFlagColumns = []string{
	"IsAvailableForCreditAllocation",
	"IsAvailableForHoliday",
	"IsAvailableForLocation",
	"IsAvailableForProfile",
	"IsAvailableForRequestLimit",
	"IsAvailableForScheduleEntry",
	"IsAvailableForSeries",
	"IsAvailableForStaff",
	"IsAvailableForStaffLocation",
	"IsAvailableForStaffTarget",
	"IsAvailableForTask",
	"IsFilterOnAdmin",
	"IsFilterEverywhereExceptAdmin",
	"IsPermissionCategory",
	"IsSingleTaggingOnly",
	"IsTTCMCategory",
	"IsUsedForFiltering",
	"IsUsedForStats",
}

const tagSql = `select
	CategoryKey,
	CategoryName,
	CategoryCreatedDateTime = cast(replace(substring(CategoryDateCreated, 1, 23), 'T', ' ') as datetime),
	CategoryModifiedDateTime = cast(replace(substring(CategoryDateLastModified, 1, 23), 'T', ' ') as datetime),
	[Key] as TagKey,
	[Name] as TagName,
	TagCreatedDateTime = cast(replace(substring(DateCreated, 1, 23), 'T', ' ') as datetime),
	TagModifiedDateTime = cast(replace(substring(DateLastModified, 1, 23), 'T', ' ') as datetime),
	IsAvailableForCreditAllocation,
	IsAvailableForHoliday,
	IsAvailableForLocation,
	IsAvailableForProfile,
	IsAvailableForRequestLimit,
	IsAvailableForScheduleEntry,
	IsAvailableForSeries,
	IsAvailableForStaff,
	IsAvailableForStaffLocation,
	IsAvailableForStaffTarget,
	IsAvailableForTask,
	IsFilterOnAdmin,
	IsFilterEverywhereExceptAdmin,
	IsPermissionCategory,
	IsSingleTaggingOnly,
	IsTTCMCategory,
	IsUsedForFiltering,
	IsUsedForStats
from anes.vw_STAGE_Tags
order by CategoryName, TagName`

// ProviderCaseLog is read from Clarity. Line numbers are assigned per case after the fetch.
func ProviderCaseLog() *Entity {
	d := td.NewDescriptor(
		f("CaseID", td.FieldString),
		f("LineNumber", td.FieldBigInt),
		f("CaseDate", td.FieldDate),
		f("ProviderEpicID", td.FieldString),
		f("ProviderType", td.FieldInt),
		f("ProviderAnesthesiaStart", td.FieldDateTime),
		f("ProviderAnesthesiaStop", td.FieldDateTime),
		f("PatientDischarged", td.FieldDateTime),
		f("LogStatus", td.FieldInt),
		f("CaseStatus", td.FieldInt),
		fs("LastUpdate", td.FieldDateTime, "LastUpdated"),
	)
	e := &Entity{
		Name: "ProviderCaseLog",
		Source: Source{
			Kind:       SourceSql,
			Connection: c.ConnectionNameClarity,
			Sqltext:    providerCaseLogSql,
			Windowed:   true,
		},
		Descriptor:   d,
		Keys:         []string{"CaseID", "LineNumber"},
		OrderKey:     "LastUpdate",
		Scope:        components.ScopeKeySet,
		ScopeKey:     "CaseID",
		DeletePolicy: components.DeletePolicyDelete,
		Transforms: []components.Transform{components.LineNumbers{
			Partition: "CaseID",
			OrderBy:   []string{"ProviderAnesthesiaStart", "ProviderType", "ProviderEpicID"},
			Field:     "LineNumber",
		}},
		DaysBack:    c.CaseLogDaysBackDefault,
		DaysForward: 0,
	}
	e.ImportTable, e.StageTable, e.ProductionTable = tables("import.ProviderCaseLog_OpTime", "stage.ProviderCaseLog", "dbo.ProviderCaseLog")
	return e
}

const providerCaseLogSql = `select distinct
	a.log_id as CaseID,
	a.AN_DATE as CaseDate,
	g.prov_id as ProviderEpicID,
	ProviderType = case
		when zc1.[NAME] = 'Anesthesiologist' then 1
		when zc1.[NAME] = 'ANESTHESIOLOGY FELLOW' then 2
		when zc1.[NAME] = 'Anesthesiology Resident' then 3
		when zc1.[NAME] = 'CRNA' then 4
		when zc1.[NAME] = 'Perfusionist' then 5
		when zc1.[NAME] = 'RESIDENT REGISTERED NURSE ANESTHETIST' then 6
	end,
	c.AN_BEGIN_LOCAL_DTTM as ProviderAnesthesiaStart,
	c.AN_END_LOCAL_DTTM as ProviderAnesthesiaStop,
	evnt.PatientDischarged_DateTime as PatientDischarged,
	lg.STATUS_C as LogStatus,
	lg.OR_TIME_EVTS_ENT_C as CaseStatus,
	a.UPDATE_DATE as LastUpdated
from anes.F_AN_Record_Summary as a
	inner join anes.pat_enc as b on a.an_52_enc_csn_id = b.pat_enc_csn_id
	inner join dim.AN_STAFF as c on a.AN_EPISODE_ID = c.SUMMARY_BLOCK_ID
	inner join anes.identity_id as e on e.pat_id = a.an_pat_id and identity_type_id = 10
	left join anes.or_log as lg on lg.LOG_ID = a.LOG_ID
	inner join anes.vw_OR_LogTrackingTimes as evnt on evnt.LOG_ID = lg.LOG_ID
	left join dim.clarity_ser as g on g.prov_id = c.AN_PROV_ID
	left join dim.ZC_OR_ANSTAFF_TYPE as zc1 on zc1.ANEST_STAFF_REQ_C = c.AN_PROV_TYPE_C
where lg.surgery_date >= @p1
	and lg.surgery_date < @p2
	and not lg.STATUS_C in (4, 6)
order by CaseDate, CaseID`
