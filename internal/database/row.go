package database

// ScanRows reads all rows from the result set and returns them as Records
// in column order, with values already decoded by the driver.
//
// The returned slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows; callers do not need to call Close().
func ScanRows(rows Rows) ([]Record, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errQuery("failed to read column names", err)
	}

	result := make([]Record, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errQuery("failed to scan row", err)
		}

		rec := make(Record, len(columns))
		for i, col := range columns {
			rec[i] = Field{Column: col, Value: values[i]}
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errQuery("error during row iteration", err)
	}

	return result, nil
}

// ScanFirst returns the first row of the result set, or nil when it is
// empty. Like ScanRows it always closes rows.
func ScanFirst(rows Rows) (Record, error) {
	recs, err := ScanRows(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}
