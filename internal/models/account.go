// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package models

import "time"

// Account is one seller identity operating on one marketplace channel.
type Account struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Channel   string    `json:"channel"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductFact is a cached snapshot of immutable catalog facts for one ASIN.
// It is replaced wholesale on refresh, never incrementally updated.
type ProductFact struct {
	ID           int64     `json:"id"`
	ASIN         string    `json:"asin"`
	Title        string    `json:"title,omitempty"`
	Brand        string    `json:"brand,omitempty"`
	Description  string    `json:"description,omitempty"`
	BulletPoints string    `json:"bullet_points,omitempty"`
	ProductType  string    `json:"product_type,omitempty"`
	Color        string    `json:"color,omitempty"`
	Size         string    `json:"size,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Template is a pre-written answer keyed by inquiry category and channel.
type Template struct {
	ID             int64     `json:"id"`
	CategoryKey    string    `json:"category_key"`
	Category       string    `json:"category"`
	Subcategory    string    `json:"subcategory,omitempty"`
	Platform       string    `json:"platform"`
	AnswerTemplate string    `json:"answer_template"`
	StaffNotes     string    `json:"staff_notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
